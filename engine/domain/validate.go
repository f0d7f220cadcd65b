package domain

import "fmt"

// ValidateSource checks a source's configuration before ingestion.
func ValidateSource(s Source) error {
	if s.Name == "" {
		return fmt.Errorf("validate: name is empty")
	}
	if !ValidKinds[s.Kind] {
		return fmt.Errorf("validate: unknown kind %q", s.Kind)
	}
	switch s.Kind {
	case KindAPI:
		if s.APIURL == "" {
			return fmt.Errorf("validate: api source has no url")
		}
	case KindPDF:
		if s.PDFPath == "" {
			return ErrMissingFile
		}
	}
	return nil
}
