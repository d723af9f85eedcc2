package registry

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/capiscio/didjwt/pkg/crypto"
	"github.com/capiscio/didjwt/pkg/did"
	"gopkg.in/yaml.v3"
)

// LocalResolver implements did.Resolver from a YAML (or JSON) file of
// documents, for offline verification.
//
//	documents:
//	  - id: did:uport:2nQtiQG6Cgm1GYTBaaKAgr76uY7iSexUkqX
//	    owner: "0x00521965e7bd230323c423d96c657db5b79d099f"
//	    publicKeys: ["0x04..."]
type LocalResolver struct {
	Path string

	mu   sync.RWMutex
	docs map[string]*did.Document
}

type localFile struct {
	Documents []localDocument `yaml:"documents"`
}

type localDocument struct {
	ID         string   `yaml:"id"`
	Owner      string   `yaml:"owner"`
	Delegates  []string `yaml:"delegates"`
	PublicKeys []string `yaml:"publicKeys"`
}

// NewLocalResolver creates a LocalResolver. The file is read on first use.
func NewLocalResolver(path string) *LocalResolver {
	return &LocalResolver{Path: path}
}

// Resolve implements did.Resolver.
func (r *LocalResolver) Resolve(_ context.Context, id string) (*did.Document, error) {
	docs, err := r.load()
	if err != nil {
		return nil, err
	}
	key, _, _ := strings.Cut(did.Normalize(id), "#")
	doc, ok := docs[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s not in %s", ErrIdentityNotFound, key, r.Path)
	}
	return doc, nil
}

func (r *LocalResolver) load() (map[string]*did.Document, error) {
	r.mu.RLock()
	if r.docs != nil {
		defer r.mu.RUnlock()
		return r.docs, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double check
	if r.docs != nil {
		return r.docs, nil
	}

	data, err := os.ReadFile(r.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read local documents: %w", err)
	}
	var file localFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	docs := make(map[string]*did.Document, len(file.Documents))
	for _, d := range file.Documents {
		id := did.Normalize(d.ID)
		doc := &did.Document{ID: id, Owner: strings.ToLower(d.Owner)}
		if doc.Owner == "" {
			if parsed, err := did.Parse(id); err == nil {
				doc.Owner = parsed.AddressHex()
			}
		}
		for _, delegate := range d.Delegates {
			doc.Delegates = append(doc.Delegates, strings.ToLower(delegate))
		}
		for _, k := range d.PublicKeys {
			pub, err := crypto.ParsePublicKeyHex(k)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", id, err)
			}
			doc.PublicKeys = append(doc.PublicKeys, pub)
		}
		docs[id] = doc
	}
	r.docs = docs
	return docs, nil
}
