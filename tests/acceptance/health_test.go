package acceptance

import (
	"net/http"
)

func (s *Suite) TestHealthEndpoint() {
	var body struct {
		Status     string `json:"status"`
		Session    string `json:"session"`
		Connection string `json:"connection"`
	}
	status := s.do(http.MethodGet, "/health", nil, &body)

	s.Equal(http.StatusOK, status, "Expected status 200")
	s.Equal("pass", body.Status)
	s.Equal("unauthenticated", body.Session)
	s.Equal("disconnected", body.Connection)
}

func (s *Suite) TestMetricsEndpoint() {
	resp, err := http.Get(s.BaseURL + "/metrics")
	s.Require().NoError(err, "Failed to make request")
	defer resp.Body.Close()

	s.Equal(http.StatusOK, resp.StatusCode)
}
