package models

// GenerationRequest is the input of one content generation call
type GenerationRequest struct {
	Theme      string `json:"theme"`
	Context    string `json:"context"`
	UserLevel  Level  `json:"user_level"`
	ChildLevel Level  `json:"child_level"`
	Language   string `json:"language"`
}

// GeneratedContent is what the content generator returns for one cell
type GeneratedContent struct {
	MessageText        string `json:"message_text"`
	MomAudioText       string `json:"mom_audio_text"`
	ChildAudioText     string `json:"child_audio_text"`
	DiaryURLSuggestion string `json:"diary_url_suggestion"`
}

// SynthesisRequest is the input of one audio synthesis call
type SynthesisRequest struct {
	Text  string    `json:"text"`
	Voice string    `json:"voice_model"`
	Speed float64   `json:"speed"`
	Role  AudioRole `json:"role"`
}
