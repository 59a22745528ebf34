package models

import (
	"time"
)

type Message struct {
	ID              string    `json:"id" gorm:"primaryKey;type:text"`
	ClientMessageID *string   `json:"clientMessageId" gorm:"type:text;index:message_cmid,unique"`
	Room            string    `json:"room" gorm:"type:text;index"`
	Sender          string    `json:"sender" gorm:"type:text"`
	Content         string    `json:"content" gorm:"type:text"`
	CreatedAt       time.Time `json:"createdAt" gorm:"type:timestamp with time zone;not null;index"`
}

type Gig struct {
	ID          string    `json:"id" gorm:"primaryKey;type:text"`
	SellerID    string    `json:"sellerId" gorm:"type:text;index"`
	Title       string    `json:"title" gorm:"type:text"`
	Description string    `json:"description" gorm:"type:text"`
	Category    string    `json:"category" gorm:"type:text;index"`
	Price       int64     `json:"price" gorm:"type:bigint;not null"`
	Cover       string    `json:"cover" gorm:"type:text"`
	TotalStars  int64     `json:"totalStars" gorm:"type:bigint;not null;default:0"`
	StarNumber  int64     `json:"starNumber" gorm:"type:bigint;not null;default:0"`
	CreatedAt   time.Time `json:"createdAt" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
}

type Order struct {
	ID        string    `json:"id" gorm:"primaryKey;type:text"`
	GigID     string    `json:"gigId" gorm:"type:text;index"`
	Gig       Gig       `json:"-" gorm:"constraint:OnDelete:CASCADE;"`
	BuyerID   string    `json:"buyerId" gorm:"type:text;index"`
	Amount    int64     `json:"amount" gorm:"type:bigint;not null"`
	PaymentID string    `json:"paymentId" gorm:"type:text"`
	CreatedAt time.Time `json:"createdAt" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
}

type Review struct {
	ID        string    `json:"id" gorm:"primaryKey;type:text"`
	GigID     string    `json:"gigId" gorm:"type:text;index:review_gig_user,unique"`
	Gig       Gig       `json:"-" gorm:"constraint:OnDelete:CASCADE;"`
	UserID    string    `json:"userId" gorm:"type:text;index:review_gig_user,unique"`
	Rating    int       `json:"rating" gorm:"type:int;not null"`
	Comment   string    `json:"comment" gorm:"type:text"`
	CreatedAt time.Time `json:"createdAt" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
}
