package dto

import "encoding/json"

type ChatRequest struct {
	Query string `json:"query"`
}

type SecurityPlanRequest struct {
	Department            string `json:"department"`
	Province              string `json:"province"`
	District              string `json:"district"`
	MainTopic             string `json:"mainTopic"`
	AdditionalDescription string `json:"additionalDescription"`
}

type InfoAgentRequest struct {
	Description string `json:"description"`
}

type AssistantResponse struct {
	Text string          `json:"text,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}
