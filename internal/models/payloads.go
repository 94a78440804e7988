package models

// These structs define the JSON payloads exchanged with the HTTP surface.

// AddSignerRequest adds one required party to a draft or sent document.
type AddSignerRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// AddFieldRequest places (or re-places) the signature field for a signer,
// addressed by the signer's email within the document.
type AddFieldRequest struct {
	SignerEmail string    `json:"signerEmail"`
	PageNumber  int       `json:"pageNumber"`
	X           float64   `json:"x"`
	Y           float64   `json:"y"`
	Type        FieldType `json:"type"`
	IncludeName bool      `json:"includeName"`
	IncludeDate bool      `json:"includeDate"`
}

// SignatureSubmission carries a signer's captured mark. The payload is
// typically a data URL (data:image/png;base64,...) and is stored opaquely;
// it is not validated until composition time.
type SignatureSubmission struct {
	SignatureData string `json:"signatureData"`
}

// SigningLink pairs a signer's email with the capability URL that authorizes
// signing. Delivery of the link is out of band.
type SigningLink struct {
	Email string `json:"email"`
	Token string `json:"token"`
	URL   string `json:"url"`
}

// SendResponse is returned by the send operation.
type SendResponse struct {
	Message string        `json:"message"`
	Links   []SigningLink `json:"links"`
}

// SignerView is everything a signer needs to render their signing session:
// a document summary plus the fields assigned to them.
type SignerView struct {
	DocumentID string         `json:"documentId"`
	Filename   string         `json:"filename"`
	Status     DocumentStatus `json:"status"`
	SignerName string         `json:"signerName"`
	HasSigned  bool           `json:"hasSigned"`
	Fields     []Field        `json:"fields"`
}
