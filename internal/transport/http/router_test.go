package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"xs2acms/internal/authorisation"
	"xs2acms/internal/authorisation/approach"
	authservice "xs2acms/internal/authorisation/service"
	"xs2acms/internal/consent"
	consentservice "xs2acms/internal/consent/service"
	"xs2acms/internal/crypto"
	"xs2acms/internal/events"
	"xs2acms/internal/payment"
	paymentservice "xs2acms/internal/payment/service"
	"xs2acms/internal/profile"
	"xs2acms/internal/tpp"
	tppservice "xs2acms/internal/tpp/service"
)

type RouterSuite struct {
	suite.Suite
	server    *httptest.Server
	validator *approach.StaticValidator
	stopList  *tppservice.Service
	consents  *consentservice.Service
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	prof := profile.Default()
	for typ := range prof.DefaultApproach {
		prof.DefaultApproach[typ] = authorisation.ApproachEmbedded
	}

	logger := slog.Default()
	s.validator = approach.NewStaticValidator()
	resolver := approach.NewResolver(
		approach.NewEmbedded(prof, s.validator, logger),
		approach.NewDecoupled(prof, approach.NewMemoryChannel(), logger),
		approach.NewRedirect(prof, approach.NewLinkBuilder(prof.RedirectURLTemplate, "test-secret"), logger),
	)

	authStore := authorisation.NewInMemoryStore()
	publisher := events.NewMemoryPublisher()
	consentStore := consent.NewInMemoryStore()
	s.consents = consentservice.New(consentStore, consentStore, authStore, publisher)
	payments := paymentservice.New(payment.NewInMemoryStore(), authStore, publisher)
	engine := authservice.New(authStore, resolver, prof, s.consents, payments, publisher)
	s.stopList = tppservice.New(tpp.NewInMemoryStore())

	registry := crypto.NewRegistry(
		crypto.NewAesGcmProvider(prof.IDProviderID, 256, 1024),
		crypto.NewAesGcmProvider(prof.DataProviderID, 256, 1024),
	)
	ids, err := crypto.NewIdentifierService(registry, []byte("server-secret"), prof.IDProviderID, prof.DataProviderID)
	s.Require().NoError(err)

	handler := NewHandler(s.consents, payments, engine, s.stopList, ids, nil, logger)
	s.server = httptest.NewServer(NewRouter(handler))
	s.T().Cleanup(s.server.Close)
}

func (s *RouterSuite) request(method, path string, body any, headers map[string]string) (*http.Response, map[string]any) {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.server.URL+path, &buf)
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func (s *RouterSuite) createConsent(psus ...string) string {
	psuData := make([]map[string]string, len(psus))
	for i, p := range psus {
		psuData[i] = map[string]string{"psuId": p}
	}
	resp, body := s.request(http.MethodPost, "/api/v1/consents", map[string]any{
		"recurringIndicator": true,
		"validUntil":         time.Now().AddDate(0, 1, 0).Format("2006-01-02"),
		"frequencyPerDay":    4,
		"access":             map[string]any{"accounts": []string{"DE02100100109307118603"}},
		"psuData":            psuData,
	}, nil)
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	id, _ := body["consentId"].(string)
	s.Require().NotEmpty(id)
	return id
}

func (s *RouterSuite) TestHealth() {
	resp, body := s.request(http.MethodGet, "/health", nil, nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("ok", body["status"])
}

func (s *RouterSuite) TestConsentLifecycleOverHTTP() {
	id := s.createConsent("psu-1")

	resp, body := s.request(http.MethodGet, "/api/v1/consents/"+id, nil, nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("RECEIVED", body["consentStatus"])
	// The protected id round-trips, the internal one never leaks.
	s.Equal(id, body["consentId"])

	s.validator.Register("psu-1", "secret", "123456",
		authorisation.ScaMethod{ID: "SMS_OTP", Name: "SMS one-time password"})

	resp, body = s.request(http.MethodPost, "/api/v1/consents/"+id+"/authorisations",
		map[string]string{"psuId": "psu-1"}, nil)
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	authID, _ := body["authorisationId"].(string)
	s.Require().NotEmpty(authID)

	resp, body = s.request(http.MethodPut, "/api/v1/authorisations/"+authID,
		map[string]string{"psuId": "psu-1", "password": "secret"}, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Equal("PSUAUTHENTICATED", body["scaStatus"])

	resp, body = s.request(http.MethodPut, "/api/v1/authorisations/"+authID,
		map[string]string{"psuId": "psu-1", "authenticationMethodId": "SMS_OTP"}, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Equal("SCAMETHODSELECTED", body["scaStatus"])

	resp, body = s.request(http.MethodPut, "/api/v1/authorisations/"+authID,
		map[string]string{"psuId": "psu-1", "scaAuthenticationData": "123456"}, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Equal("FINALISED", body["scaStatus"])

	resp, body = s.request(http.MethodGet, "/api/v1/consents/"+id, nil, nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("VALID", body["consentStatus"])

	resp, body = s.request(http.MethodGet, "/api/v1/authorisations/"+authID+"/status", nil, nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("FINALISED", body["scaStatus"])
}

func (s *RouterSuite) TestTamperedConsentIDIsNotFound() {
	id := s.createConsent("psu-1")
	tampered := "x" + id[1:]

	resp, _ := s.request(http.MethodGet, "/api/v1/consents/"+tampered, nil, nil)
	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *RouterSuite) TestUnknownAuthorisationIsNotFound() {
	resp, _ := s.request(http.MethodGet, "/api/v1/authorisations/nope/status", nil, nil)
	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *RouterSuite) TestWrongPasswordReturnsUnauthorisedWithFailure() {
	id := s.createConsent("psu-1")
	s.validator.Register("psu-1", "secret", "123456")

	resp, body := s.request(http.MethodPost, "/api/v1/consents/"+id+"/authorisations",
		map[string]string{"psuId": "psu-1"}, nil)
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	authID, _ := body["authorisationId"].(string)

	resp, body = s.request(http.MethodPut, "/api/v1/authorisations/"+authID,
		map[string]string{"psuId": "psu-1", "password": "wrong"}, nil)
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
	s.Equal("FAILED", body["scaStatus"])
}

func (s *RouterSuite) TestBlockedTppIsRejected() {
	s.Require().NoError(s.stopList.Block(context.Background(), "PSDDE-BAFIN-000001", "", 0))

	headers := map[string]string{"TPP-Authorisation-Number": "PSDDE-BAFIN-000001"}
	resp, body := s.request(http.MethodGet, "/api/v1/consents/whatever", nil, headers)
	s.Equal(http.StatusForbidden, resp.StatusCode)
	s.Equal("CERTIFICATE_BLOCKED", body["error"])

	// Other TPPs are unaffected.
	headers["TPP-Authorisation-Number"] = "PSDDE-BAFIN-000002"
	resp, _ = s.request(http.MethodGet, "/api/v1/consents/whatever", nil, headers)
	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *RouterSuite) TestTppBlockAdminEndpoints() {
	resp, _ := s.request(http.MethodPut, "/admin/tpp/PSDDE-BAFIN-000001/block",
		map[string]int{"durationSeconds": 3600}, nil)
	s.Equal(http.StatusNoContent, resp.StatusCode)

	resp, body := s.request(http.MethodGet, "/admin/tpp/PSDDE-BAFIN-000001/status", nil, nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal(true, body["blocked"])

	resp, _ = s.request(http.MethodPut, "/admin/tpp/PSDDE-BAFIN-000001/unblock", nil, nil)
	s.Equal(http.StatusNoContent, resp.StatusCode)

	resp, body = s.request(http.MethodGet, "/admin/tpp/PSDDE-BAFIN-000001/status", nil, nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal(false, body["blocked"])
}

func (s *RouterSuite) TestRevokeConsent() {
	id := s.createConsent("psu-1")

	resp, _ := s.request(http.MethodPost, "/api/v1/consents/"+id+"/revoke", nil, nil)
	s.Equal(http.StatusNoContent, resp.StatusCode)

	resp, body := s.request(http.MethodGet, "/api/v1/consents/"+id, nil, nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("REVOKED_BY_PSU", body["consentStatus"])

	// Terminal consents reject further status writes.
	resp, _ = s.request(http.MethodDelete, "/api/v1/consents/"+id, nil, nil)
	s.Equal(http.StatusConflict, resp.StatusCode)
}

func (s *RouterSuite) TestPaymentLifecycleOverHTTP() {
	resp, body := s.request(http.MethodPost, "/api/v1/payments", map[string]any{
		"psuIds":      []string{"psu-1"},
		"paymentData": map[string]string{"endToEndIdentification": "RI-123"},
	}, nil)
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	paymentID, _ := body["paymentId"].(string)
	s.Require().NotEmpty(paymentID)
	s.Equal("RCVD", body["transactionStatus"])

	resp, body = s.request(http.MethodGet, "/api/v1/payments/"+paymentID, nil, nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("RCVD", body["transactionStatus"])
}

func (s *RouterSuite) TestCreateConsentRejectsBadDate() {
	resp, _ := s.request(http.MethodPost, "/api/v1/consents", map[string]any{
		"validUntil": "not-a-date",
		"psuData":    []map[string]string{{"psuId": "psu-1"}},
	}, nil)
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}
