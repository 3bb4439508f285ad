package api

// HealthResponse is the JSON body of GET /healthz.
type HealthResponse struct {
	Status    string `json:"status"`
	Instances int    `json:"instances"`
	Accounts  int    `json:"accounts"`
}

type errorResponse struct {
	Error string `json:"error"`
}
