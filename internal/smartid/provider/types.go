package provider

// Provider session states and end results.
const (
	SessionStateRunning  = "RUNNING"
	SessionStateComplete = "COMPLETE"

	EndResultOK = "OK"

	CertificateLevelQualified = "QUALIFIED"
	HashTypeSHA512            = "SHA512"
	InteractionDisplayPIN     = "displayTextAndPIN"
)

// InitiateRequest is what the service asks the provider to start.
type InitiateRequest struct {
	Country     string
	PNO         string
	Hash        string
	DisplayText string
}

// SemanticsIdentifier renders the ETSI natural person identifier.
func (r InitiateRequest) SemanticsIdentifier() string {
	return "PNO" + r.Country + "-" + r.PNO
}

type authenticationRequest struct {
	RelyingPartyUUID         string        `json:"relyingPartyUUID"`
	RelyingPartyName         string        `json:"relyingPartyName"`
	CertificateLevel         string        `json:"certificateLevel"`
	Hash                     string        `json:"hash"`
	HashType                 string        `json:"hashType"`
	AllowedInteractionsOrder []interaction `json:"allowedInteractionsOrder"`
}

type interaction struct {
	Type          string `json:"type"`
	DisplayText60 string `json:"displayText60,omitempty"`
}

type authenticationResponse struct {
	SessionID string `json:"sessionID"`
}

// SessionStatus is the provider's answer to a session poll.
type SessionStatus struct {
	State     string            `json:"state"`
	Result    SessionResult     `json:"result"`
	Signature *SignatureValue   `json:"signature,omitempty"`
	Cert      *CertificateValue `json:"cert,omitempty"`
}

// SessionResult carries the end result once the session is complete.
type SessionResult struct {
	EndResult      string `json:"endResult"`
	DocumentNumber string `json:"documentNumber,omitempty"`
}

// SignatureValue is the holder's base64 signature over the challenge.
type SignatureValue struct {
	Value     string `json:"value"`
	Algorithm string `json:"algorithm"`
}

// CertificateValue is the holder's base64 DER certificate.
type CertificateValue struct {
	Value            string `json:"value"`
	CertificateLevel string `json:"certificateLevel"`
}
