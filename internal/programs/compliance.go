// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package programs

import (
	"regexp"
	"strings"

	"github.com/pdiddy/grant-engine/pkg/types"
)

var reEmail = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)

var cloudHosts = []string{"dropbox", "drive.google", "onedrive"}

// ValidateCompliance applies p's validation rules to the assembled proposal
// text and returns one message per failed rule.
func ValidateCompliance(p types.Program, content string) []string {
	lower := strings.ToLower(content)
	var issues []string
	for _, rule := range p.ValidationRules {
		switch rule {
		case "broader_impacts_required":
			if !strings.Contains(lower, "broader impact") {
				issues = append(issues, "Broader impacts section not found")
			}
		case "no_email_addresses":
			if reEmail.MatchString(content) {
				issues = append(issues, "Email addresses found in content")
			}
		case "no_cloud_storage_links":
			for _, h := range cloudHosts {
				if strings.Contains(lower, h) {
					issues = append(issues, "Cloud storage links found")
					break
				}
			}
		case "software_plan_required":
			if !strings.Contains(lower, "software management plan") && !strings.Contains(lower, "software plan") {
				issues = append(issues, "Software management plan not found")
			}
		case "career_development_required":
			if !strings.Contains(lower, "career development") {
				issues = append(issues, "CAREER development plan not found")
			}
		case "education_integration_required":
			if !strings.Contains(lower, "education") {
				issues = append(issues, "Integration of research and education not described")
			}
		}
	}
	return issues
}

// ValidateComplianceByID looks up id and applies its rules.
func (r *Registry) ValidateComplianceByID(id, content string) []string {
	p, err := r.Get(id)
	if err != nil {
		return []string{"Unknown program: " + id}
	}
	return ValidateCompliance(p, content)
}
