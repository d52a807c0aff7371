package checksubscription

// Input identifies the user either directly or through the caller's access token.
// userId wins when both are present.
type Input struct {
	UserID      string `json:"userId,omitempty"`
	AccessToken string `json:"accessToken,omitempty"`
}

type Output struct {
	IsEntitled bool   `json:"isEntitled"`
	Status     string `json:"status"`
	Reason     string `json:"reason"`
	UserID     string `json:"userId"`
}
