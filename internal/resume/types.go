// Package resume parses resumes into structured profiles and serves chat
// grounded in them.
package resume

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

const notSpecified = "Not specified"

// FlexString holds a value the model may return as a number or a string,
// such as "totalYears": 5 or "totalYears": "5+". Numeric values are
// re-encoded as numbers.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseFloat(string(f), 64); err == nil && json.Valid([]byte(f)) {
		return []byte(f), nil
	}
	return json.Marshal(string(f))
}

// orNotSpecified treats empty and zero values as missing.
func (f FlexString) orNotSpecified() FlexString {
	if s := strings.TrimSpace(string(f)); s == "" || s == "0" {
		return notSpecified
	}
	return f
}

type Experience struct {
	TotalYears    FlexString `json:"totalYears,omitempty"`
	CurrentRole   string     `json:"currentRole,omitempty"`
	PreviousRoles []string   `json:"previousRoles"`
}

type Technologies struct {
	Languages  []string `json:"languages"`
	Frameworks []string `json:"frameworks"`
	Tools      []string `json:"tools"`
	Cloud      []string `json:"cloud"`
}

type Education struct {
	Degrees        []string `json:"degrees"`
	Certifications []string `json:"certifications"`
}

type Project struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Technologies []string `json:"technologies"`
}

// Data is the structured profile extracted from a resume.
type Data struct {
	Experience      Experience   `json:"experience"`
	Technologies    Technologies `json:"technologies"`
	Education       Education    `json:"education"`
	Projects        []Project    `json:"projects"`
	Domain          []string     `json:"domain"`
	KeyAchievements []string     `json:"keyAchievements"`
}

// DefaultData is used when the model output cannot be parsed.
func DefaultData() *Data {
	d := &Data{
		Experience: Experience{TotalYears: "Unknown", CurrentRole: notSpecified},
	}
	d.normalize()
	return d
}

// normalize replaces nil slices so they encode as [] instead of null.
func (d *Data) normalize() {
	for _, s := range []*[]string{
		&d.Experience.PreviousRoles,
		&d.Technologies.Languages, &d.Technologies.Frameworks, &d.Technologies.Tools, &d.Technologies.Cloud,
		&d.Education.Degrees, &d.Education.Certifications,
		&d.Domain, &d.KeyAchievements,
	} {
		if *s == nil {
			*s = []string{}
		}
	}
	if d.Projects == nil {
		d.Projects = []Project{}
	}
	for i := range d.Projects {
		if d.Projects[i].Technologies == nil {
			d.Projects[i].Technologies = []string{}
		}
	}
}

// TopTechnologies returns up to n languages then frameworks.
func (d *Data) TopTechnologies(n int) []string {
	out := make([]string, 0, n)
	for _, t := range append(append([]string{}, d.Technologies.Languages...), d.Technologies.Frameworks...) {
		if len(out) == n {
			break
		}
		out = append(out, t)
	}
	return out
}

// Summary is the short profile shown next to a parsed resume.
type Summary struct {
	Experience   FlexString `json:"experience"`
	Role         string     `json:"role"`
	Technologies []string   `json:"technologies"`
}

// Summarize builds the Summary for d.
func (d *Data) Summarize() Summary {
	role := d.Experience.CurrentRole
	if strings.TrimSpace(role) == "" {
		role = notSpecified
	}
	return Summary{
		Experience:   d.Experience.TotalYears.orNotSpecified(),
		Role:         role,
		Technologies: d.TopTechnologies(5),
	}
}

// BasedOn is attached to resume chat completions.
type BasedOn struct {
	Experience   FlexString `json:"experience,omitempty"`
	Role         string     `json:"role,omitempty"`
	Technologies []string   `json:"technologies"`
}

func (d *Data) basedOn() BasedOn {
	return BasedOn{
		Experience:   d.Experience.TotalYears,
		Role:         d.Experience.CurrentRole,
		Technologies: d.TopTechnologies(5),
	}
}
