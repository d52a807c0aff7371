package models

// CreditRecord tracks how many conversion credits a user has consumed.
type CreditRecord struct {
	UserID      string `json:"userId"`
	UsedCredits int    `json:"usedCredits"`
}
