package registry

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	qrcode "github.com/skip2/go-qrcode"

	dErrors "velos/pkg/domain-errors"
)

// ExportFormat selects the wire shape for an exported credential.
type ExportFormat string

const (
	FormatJSONLD ExportFormat = "json-ld"
	FormatJWT    ExportFormat = "jwt"
	FormatQR     ExportFormat = "qr"
)

// Export is a credential rendered for external consumption.
type Export struct {
	ContentType string
	Body        []byte
}

// ExportCredential renders a credential as a W3C-shaped JSON-LD document, a
// signed compact JWT, or a QR PNG of the JSON-LD form.
func (r *Registry) ExportCredential(vc VerifiableCredential, format ExportFormat) (Export, error) {
	switch format {
	case FormatJSONLD:
		body, err := json.MarshalIndent(jsonLDDocument(vc), "", "  ")
		if err != nil {
			return Export{}, fmt.Errorf("render json-ld: %w", err)
		}
		return Export{ContentType: "application/ld+json", Body: body}, nil

	case FormatJWT:
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"iss": vc.Issuer.String(),
			"sub": vc.Subject.String(),
			"jti": vc.ID,
			"iat": vc.IssuanceDate.Unix(),
			"vc": map[string]any{
				"type":   []string{"VerifiableCredential", string(vc.Type)},
				"claims": vc.Claims,
			},
		})
		signed, err := token.SignedString(r.secret)
		if err != nil {
			return Export{}, fmt.Errorf("sign jwt: %w", err)
		}
		return Export{ContentType: "application/jwt", Body: []byte(signed)}, nil

	case FormatQR:
		doc, err := json.Marshal(jsonLDDocument(vc))
		if err != nil {
			return Export{}, fmt.Errorf("render qr payload: %w", err)
		}
		png, err := qrcode.Encode(string(doc), qrcode.Medium, 256)
		if err != nil {
			return Export{}, fmt.Errorf("encode qr: %w", err)
		}
		return Export{ContentType: "image/png", Body: png}, nil

	default:
		return Export{}, dErrors.New(dErrors.CodeInvalidInput, "unsupported export format")
	}
}

func jsonLDDocument(vc VerifiableCredential) map[string]any {
	return map[string]any{
		"@context": []string{
			"https://www.w3.org/2018/credentials/v1",
			"https://velos.dev/credentials/v1",
		},
		"id":                vc.ID,
		"type":              []string{"VerifiableCredential", string(vc.Type)},
		"issuer":            vc.Issuer.String(),
		"credentialSubject": map[string]any{"id": vc.Subject.String(), "claims": vc.Claims},
		"issuanceDate":      vc.IssuanceDate.Format(time.RFC3339Nano),
		"proof":             vc.Proof,
	}
}
