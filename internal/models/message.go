package models

import "time"

// Message is one entry of a district board. Order is assigned by the ledger
// and is unique and gapless within a district. The id is "id" on the wire and
// in Postgres, and the document key "_id" in MongoDB.
type Message struct {
	ID             string     `json:"id" bson:"_id"`
	Department     string     `json:"department" bson:"department"`
	Province       string     `json:"province" bson:"province"`
	District       string     `json:"district" bson:"district"`
	FullName       string     `json:"fullname" bson:"fullname"`
	MessageContent string     `json:"message_content" bson:"message_content"`
	Order          int64      `json:"order" bson:"order"`
	CreatedAt      time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at" bson:"updated_at"`
	IsAlert        bool       `json:"is_alert" bson:"is_alert"`
}
