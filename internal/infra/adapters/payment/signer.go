// File: internal/infra/adapters/payment/signer.go
package payment

import (
	"bytes"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"
)

// Signer computes the request token: the digest of the concatenated values of every
// signable parameter plus the shared secret, ordered by key.
type Signer struct {
	secret         string
	signatureField string
	secretField    string
	exclude        map[string]struct{}
	newHash        func() hash.Hash
	asciiJSON      bool
}

type SignerOptions struct {
	Secret         string
	SignatureField string   // default Token
	SecretField    string   // default Password
	Exclude        []string // default Token, Receipt, DATA
	Digest         string   // sha256 | sha512
	ASCIIJSON      bool
}

func NewSigner(opts SignerOptions) *Signer {
	s := &Signer{
		secret:         opts.Secret,
		signatureField: opts.SignatureField,
		secretField:    opts.SecretField,
		exclude:        make(map[string]struct{}),
		newHash:        sha256.New,
		asciiJSON:      opts.ASCIIJSON,
	}
	if s.signatureField == "" {
		s.signatureField = "Token"
	}
	if s.secretField == "" {
		s.secretField = "Password"
	}
	exclude := opts.Exclude
	if len(exclude) == 0 {
		exclude = []string{"Token", "Receipt", "DATA"}
	}
	for _, k := range exclude {
		s.exclude[k] = struct{}{}
	}
	s.exclude[s.signatureField] = struct{}{}
	if strings.EqualFold(opts.Digest, "sha512") {
		s.newHash = sha512.New
	}
	return s
}

func (s *Signer) SignatureField() string { return s.signatureField }

// Sign returns the hex digest for params. params itself is not modified.
func (s *Signer) Sign(params map[string]any) (string, error) {
	signable := make(map[string]any, len(params)+1)
	for k, v := range params {
		if _, skip := s.exclude[k]; skip || v == nil {
			continue
		}
		signable[k] = v
	}
	signable[s.secretField] = s.secret

	keys := make([]string, 0, len(signable))
	for k := range signable {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		v, err := s.stringify(signable[k])
		if err != nil {
			return "", fmt.Errorf("sign %s: %w", k, err)
		}
		b.WriteString(v)
	}
	h := s.newHash()
	h.Write([]byte(b.String()))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify recomputes the token of params and compares it in constant time.
func (s *Signer) Verify(params map[string]any) bool {
	got, ok := params[s.signatureField].(string)
	if !ok || got == "" {
		return false
	}
	want, err := s.Sign(params)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.ToLower(got)), []byte(want)) == 1
}

func (s *Signer) stringify(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case json.Number:
		return t.String(), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case fmt.Stringer:
		return t.String(), nil
	default:
		return s.canonicalJSON(t)
	}
}

// canonicalJSON renders nested values compactly with sorted keys.
// Maps are sorted by encoding/json; structs are normalized through a generic round trip.
func (s *Signer) canonicalJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	var generic any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return "", err
	}
	out := strings.TrimSuffix(buf.String(), "\n")
	if s.asciiJSON {
		out = escapeNonASCII(out)
	}
	return out, nil
}

// escapeNonASCII rewrites every rune above 0x7F as \uXXXX, using surrogate pairs when needed.
func escapeNonASCII(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r < 0x80:
			b.WriteRune(r)
		case r > 0xFFFF:
			hi, lo := utf16.EncodeRune(r)
			fmt.Fprintf(&b, `\u%04x\u%04x`, hi, lo)
		default:
			fmt.Fprintf(&b, `\u%04x`, r)
		}
	}
	return b.String()
}
