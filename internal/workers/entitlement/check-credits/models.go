package checkcredits

type Input struct {
	UserID string `json:"userId"`
}

type Output struct {
	HasCredits bool   `json:"hasCredits"`
	Status     string `json:"status"`
	Reason     string `json:"reason"`
}
