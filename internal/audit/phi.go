package audit

import (
	"sort"
	"strings"
)

// phiResources are resource types whose every access touches protected
// health information regardless of which fields ride along.
var phiResources = map[string]struct{}{
	"patient":          {},
	"clinical_record":  {},
	"prescription":     {},
	"contact_lens_fit": {},
	"nhs_claim":        {},
	"referral":         {},
	"pre_screening":    {},
}

// phiFields are field names that mark a payload as PHI-bearing even on an
// otherwise neutral resource.
var phiFields = map[string]struct{}{
	"date_of_birth":   {},
	"nhs_number":      {},
	"address":         {},
	"phone":           {},
	"email":           {},
	"gp_details":      {},
	"medical_history": {},
	"medication":      {},
	"va_unaided":      {},
	"va_corrected":    {},
	"iop":             {},
	"prescription":    {},
	"clinical_notes":  {},
}

// Classify computes whether an access touched PHI and which fields did.
// A PHI resource marks every listed field; otherwise only known PHI field
// names count.
func Classify(resource string, fields []string) (bool, []string) {
	resource = strings.ToLower(strings.TrimSpace(resource))
	_, phiResource := phiResources[resource]

	var touched []string
	seen := make(map[string]struct{})
	for _, f := range fields {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		if _, ok := phiFields[f]; ok || phiResource {
			seen[f] = struct{}{}
			touched = append(touched, f)
		}
	}
	sort.Strings(touched)
	return phiResource || len(touched) > 0, touched
}
