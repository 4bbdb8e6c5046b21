package dto

import "github.com/hongminglow/barrio-seguro-be/internal/models"

type PostMessageRequest struct {
	MessageContent string `json:"message_content"`
	IsAlert        bool   `json:"is_alert"`
}

type RecentMessagesResponse struct {
	District string           `json:"district"`
	Messages []models.Message `json:"messages"`
}
