package main

import (
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

//go:embed content.yaml
var defaultContent []byte

// ErrInvalidProfile is returned when page content fails validation.
var ErrInvalidProfile = errors.New("invalid profile")

type Image struct {
	Src   string `yaml:"src"`
	Alt   string `yaml:"alt"`
	Sizes string `yaml:"sizes"`
}

// SocialLink is one entry of the link list under the portrait.
type SocialLink struct {
	Label string `yaml:"label"`
	Href  string `yaml:"href"`
	Icon  string `yaml:"icon"`
	Class string `yaml:"class"`
}

// External reports whether the link leaves the site over http(s).
func (l SocialLink) External() bool {
	u, err := url.Parse(l.Href)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https")
}

// Profile is everything the About page shows.
type Profile struct {
	Name        string       `yaml:"name"`
	Title       string       `yaml:"title"`
	Description string       `yaml:"description"`
	Headline    string       `yaml:"headline"`
	Portrait    Image        `yaml:"portrait"`
	Bio         []string     `yaml:"bio"`
	Links       []SocialLink `yaml:"links"`
}

// LoadProfile reads page content from path, or the built-in content when path
// is empty.
func LoadProfile(path string) (*Profile, error) {
	data := defaultContent
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read content file: %w", err)
		}
		data = b
	}
	return parseProfile(data)
}

func parseProfile(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	p.normalize()
	return &p, nil
}

// Validate checks the few things a broken content file can get wrong.
func (p *Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidProfile)
	}
	if p.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidProfile)
	}
	texts := append([]string{p.Name, p.Title, p.Description, p.Headline, p.Portrait.Alt}, p.Bio...)
	for _, s := range texts {
		if !utf8.ValidString(s) {
			return fmt.Errorf("%w: text is not valid UTF-8", ErrInvalidProfile)
		}
	}
	for i, l := range p.Links {
		if l.Label == "" {
			return fmt.Errorf("%w: link %d has no label", ErrInvalidProfile, i)
		}
		if _, ok := icons[l.Icon]; !ok {
			return fmt.Errorf("%w: link %q has unknown icon %q", ErrInvalidProfile, l.Label, l.Icon)
		}
		if err := validateHref(l.Href); err != nil {
			return fmt.Errorf("%w: link %q: %v", ErrInvalidProfile, l.Label, err)
		}
	}
	return nil
}

func validateHref(href string) error {
	u, err := url.Parse(href)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return fmt.Errorf("missing host in %q", href)
		}
	case "mailto":
		if u.Opaque == "" {
			return fmt.Errorf("missing address in %q", href)
		}
	default:
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return nil
}

// normalize puts display text into NFC.
func (p *Profile) normalize() {
	p.Name = norm.NFC.String(p.Name)
	p.Title = norm.NFC.String(p.Title)
	p.Description = norm.NFC.String(p.Description)
	p.Headline = norm.NFC.String(p.Headline)
	p.Portrait.Alt = norm.NFC.String(p.Portrait.Alt)
	for i := range p.Bio {
		p.Bio[i] = norm.NFC.String(p.Bio[i])
	}
	for i := range p.Links {
		p.Links[i].Label = norm.NFC.String(p.Links[i].Label)
	}
}
