package transcriber

import (
	"fmt"

	"github.com/airenas/voxy/internal/pkg/transcriber/api"
)

// StaticProvider always serves the same configured transcriber instance
type StaticProvider struct {
	tr   api.Transcriber
	name string
}

// NewStaticProvider wraps one client
func NewStaticProvider(tr api.Transcriber, name string) (*StaticProvider, error) {
	if tr == nil {
		return nil, fmt.Errorf("no transcriber")
	}
	return &StaticProvider{tr: tr, name: name}, nil
}

func (p *StaticProvider) Get() (api.Transcriber, string, error) {
	return p.tr, p.name, nil
}
