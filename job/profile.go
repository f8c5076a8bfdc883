package job

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"imagerelay/models"
)

// Mode selects whether a profile consumes one source image or a list.
type Mode int

const (
	ModeSingle Mode = iota
	ModeGallery
)

const (
	DefaultMaxSources  = 20
	DefaultMaxParallel = 4
)

var (
	ErrMissingFields   = errors.New("missing required fields")
	ErrTooManySources  = errors.New("too many source images")
	ErrInvalidRecordID = errors.New("recordId must not contain path separators")
)

// Profile is the fixed configuration behind one route. Every variant is
// produced from every source image.
type Profile struct {
	Name           string
	Mode           Mode
	Variants       []models.VariantSpec
	TTL            time.Duration
	SuccessMessage string
	// ListResponseKey names the response attribute carrying all URLs as
	// [{url}]. Empty omits it.
	ListResponseKey string
	MaxSources      int
	MaxParallel     int
}

var (
	Optimise = Profile{
		Name: "optimise",
		Mode: ModeSingle,
		Variants: []models.VariantSpec{{
			Name:      "optimized",
			KeyPrefix: "optimized-image",
			MaxWidth:  560,
			Quality:   models.AdaptiveQuality(100, 0, 5, 100*1024),
		}},
		TTL:            7 * 24 * time.Hour,
		SuccessMessage: "Image optimized and uploaded successfully.",
	}

	Haupt = Profile{
		Name: "haupt",
		Mode: ModeSingle,
		Variants: []models.VariantSpec{{
			Name:      "main",
			KeyPrefix: "optimized-image",
			MaxWidth:  1920,
			Quality:   models.AdaptiveQuality(85, 60, 5, 500*1024),
			Sharpen:   0.5,
		}},
		TTL:            7 * 24 * time.Hour,
		SuccessMessage: "Image optimized and uploaded successfully.",
	}

	Thumbnail = Profile{
		Name: "thumbnail",
		Mode: ModeSingle,
		Variants: []models.VariantSpec{{
			Name:        "thumbnail",
			KeyPrefix:   "thumb",
			Field:       "Thumbnail2x",
			ResponseKey: "thumbnailUrl",
			MaxWidth:    560,
			Quality:     models.FixedQuality(80),
		}},
		TTL:            24 * time.Hour,
		SuccessMessage: "Thumbnail optimized and uploaded successfully",
	}

	Dual = Profile{
		Name: "dual",
		Mode: ModeSingle,
		Variants: []models.VariantSpec{
			{
				Name:        "thumbnail",
				KeyPrefix:   "thumb",
				Field:       "Thumbnail2x",
				ResponseKey: "thumbnailUrl",
				MaxWidth:    560,
				Quality:     models.FixedQuality(80),
			},
			{
				Name:        "main",
				KeyPrefix:   "main",
				Field:       "Hauptbild",
				ResponseKey: "mainUrl",
				MaxWidth:    1920,
				Quality:     models.FixedQuality(70),
			},
		},
		TTL:            24 * time.Hour,
		SuccessMessage: "Images optimized and uploaded successfully",
	}

	Gallery = Profile{
		Name: "gallery",
		Mode: ModeGallery,
		Variants: []models.VariantSpec{{
			Name:      "gallery",
			KeyPrefix: "gallery",
			Field:     "BilgalerieTEST",
			MaxWidth:  1920,
			Quality:   models.FixedQuality(70),
		}},
		TTL:             24 * time.Hour,
		SuccessMessage:  "Gallery images optimized and uploaded successfully",
		ListResponseKey: "optimizedUrls",
	}
)

// Profiles lists the built-in profiles in route order.
func Profiles() []Profile {
	return []Profile{Optimise, Haupt, Thumbnail, Dual, Gallery}
}

func (p Profile) maxSources() int {
	if p.MaxSources > 0 {
		return p.MaxSources
	}
	return DefaultMaxSources
}

func (p Profile) maxParallel() int {
	if p.MaxParallel > 0 {
		return p.MaxParallel
	}
	return DefaultMaxParallel
}

// needsTargetField reports whether any variant writes to the caller-chosen field.
func (p Profile) needsTargetField() bool {
	for _, v := range p.Variants {
		if v.Field == "" {
			return true
		}
	}
	return false
}

// Sources returns the source URLs the profile consumes from req.
func (p Profile) Sources(req models.PipelineRequest) []string {
	if p.Mode == ModeGallery {
		return req.ImageURLs
	}
	if req.ImageURL == "" {
		return nil
	}
	return []string{req.ImageURL}
}

// ValidateRequest checks req without side effects.
func (p Profile) ValidateRequest(req models.PipelineRequest) error {
	for _, s := range []string{req.RecordID, req.AccessToken, req.BaseID, req.TableName} {
		if strings.TrimSpace(s) == "" {
			return ErrMissingFields
		}
	}
	if p.needsTargetField() && strings.TrimSpace(req.TargetField) == "" {
		return ErrMissingFields
	}

	sources := p.Sources(req)
	if len(sources) == 0 {
		return ErrMissingFields
	}
	for _, u := range sources {
		if strings.TrimSpace(u) == "" {
			return ErrMissingFields
		}
	}
	if len(sources) > p.maxSources() {
		return fmt.Errorf("%w: %d given, at most %d allowed", ErrTooManySources, len(sources), p.maxSources())
	}
	if strings.ContainsAny(req.RecordID, `/\`) || strings.Contains(req.RecordID, "..") {
		return ErrInvalidRecordID
	}
	return nil
}

// Validate checks the profile itself.
func (p Profile) Validate() error {
	if p.Name == "" {
		return errors.New("profile requires a name")
	}
	if len(p.Variants) == 0 {
		return fmt.Errorf("profile %s has no variants", p.Name)
	}
	if p.TTL <= 0 {
		return fmt.Errorf("profile %s: signed URL TTL must be positive", p.Name)
	}
	for _, v := range p.Variants {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("profile %s: %w", p.Name, err)
		}
	}
	return nil
}
