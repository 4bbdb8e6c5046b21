package dto

type RegisterRequest struct {
	DNI             string `json:"dni"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Phone           string `json:"phone"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	Department      string `json:"department"`
	Province        string `json:"province"`
	District        string `json:"district"`
	AddressLine1    string `json:"addressLine1"`
	BirthDate       string `json:"birthDate"`
	TermsAccepted   bool   `json:"termsAccepted"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}
