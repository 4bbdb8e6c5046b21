package models

import "time"

// User is a registered neighbor. ID is server generated and distinct from the
// national identity document number (DNI).
type User struct {
	ID            string    `json:"id" bson:"_id"`
	DNI           string    `json:"dni" bson:"dni"`
	FirstName     string    `json:"firstName" bson:"firstName"`
	LastName      string    `json:"lastName" bson:"lastName"`
	Phone         string    `json:"phone" bson:"phone"`
	Email         string    `json:"email" bson:"email"`
	PasswordHash  string    `json:"-" bson:"password"`
	Department    string    `json:"department" bson:"department"`
	Province      string    `json:"province" bson:"province"`
	District      string    `json:"district" bson:"district"`
	AddressLine1  string    `json:"addressLine1" bson:"addressLine1"`
	BirthDate     string    `json:"birthDate" bson:"birthDate"`
	TermsAccepted bool      `json:"termsAccepted" bson:"termsAccepted"`
	IPSignup      string    `json:"ipSignup" bson:"ipSignup"`
	SignupDate    string    `json:"signupDate" bson:"signupDate"`
	CreatedAt     time.Time `json:"created_at" bson:"created_at"`
}
