package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"opticore.org/internal/audit"
	"opticore.org/internal/auth"
	"opticore.org/internal/perm"
	"opticore.org/internal/store/pg"
)

// Field names reported to the audit classifier for clinical record access.
// The record payload always carries notes, so every read is a PHI read.
var clinicalRecordFields = []string{"clinical_notes"}

// auditTenant attributes an event to the tenant that owns the touched row.
// Platform-admin sessions carry no tenant of their own, so without the row's
// tenant their reads would vanish from every tenant's trail.
func auditTenant(rc auth.RequestContext, resourceTenant string) string {
	if resourceTenant != "" {
		return resourceTenant
	}
	return rc.TenantID
}

type createRecordRequest struct {
	TenantID      string `json:"tenant_id,omitempty"`
	PatientRef    string `json:"patient_ref"`
	Summary       string `json:"summary"`
	ClinicalNotes string `json:"clinical_notes"`
}

func (a *API) handleRecordsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.handleRecordsList(w, r)
	case http.MethodPost:
		a.handleRecordCreate(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleRecordsList(w http.ResponseWriter, r *http.Request) {
	rc, ok := a.authorize(w, r, perm.PermRecordsView)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := a.deps.Records.List(r.Context(), rc, limit)
	if err != nil {
		a.record(audit.Record{
			ActorID:  rc.AccountID,
			TenantID: rc.TenantID,
			Resource: "clinical_record",
			Verb:     audit.VerbAccess,
			Status:   http.StatusInternalServerError,
			Error:    codeInternalError,
		})
		writeError(w, r, http.StatusInternalServerError, codeInternalError, "record lookup failed")
		return
	}
	if records == nil {
		records = []pg.ClinicalRecord{}
	}
	// A platform-admin listing may span tenants; attribute it to the
	// single tenant it touched, or to nobody when it mixes several.
	tenant := rc.TenantID
	if rc.IsPlatformAdmin && len(records) > 0 {
		tenant = records[0].TenantID
		for _, rec := range records[1:] {
			if rec.TenantID != tenant {
				tenant = ""
				break
			}
		}
	}
	a.record(audit.Record{
		ActorID:   rc.AccountID,
		TenantID:  tenant,
		Resource:  "clinical_record",
		Verb:      audit.VerbAccess,
		Status:    http.StatusOK,
		Success:   true,
		PHIFields: clinicalRecordFields,
	})
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (a *API) handleRecordCreate(w http.ResponseWriter, r *http.Request) {
	rc, ok := a.authorize(w, r, perm.PermRecordsEdit)
	if !ok {
		return
	}
	var req createRecordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.PatientRef) == "" {
		writeError(w, r, http.StatusBadRequest, codeInvalidRequest, "patient_ref is required")
		return
	}
	rec := &pg.ClinicalRecord{
		PatientRef:    req.PatientRef,
		Summary:       req.Summary,
		ClinicalNotes: req.ClinicalNotes,
	}
	if rc.IsPlatformAdmin {
		// Support staff have no tenant of their own and must name the
		// practice the record is for.
		if req.TenantID == "" {
			writeError(w, r, http.StatusBadRequest, codeInvalidRequest, "tenant_id is required")
			return
		}
		rec.TenantID = req.TenantID
	} else if req.TenantID != "" && req.TenantID != rc.TenantID {
		writeError(w, r, http.StatusNotFound, codeNotFound, "tenant not found")
		return
	}
	if err := a.deps.Records.Create(r.Context(), rc, rec); err != nil {
		a.record(audit.Record{
			ActorID:    rc.AccountID,
			TenantID:   auditTenant(rc, rec.TenantID),
			Resource:   "clinical_record",
			ResourceID: rec.ID,
			Verb:       audit.VerbCreate,
			Status:     http.StatusInternalServerError,
			Error:      codeInternalError,
		})
		writeError(w, r, http.StatusInternalServerError, codeInternalError, "record creation failed")
		return
	}
	a.record(audit.Record{
		ActorID:    rc.AccountID,
		TenantID:   auditTenant(rc, rec.TenantID),
		Resource:   "clinical_record",
		ResourceID: rec.ID,
		Verb:       audit.VerbCreate,
		Status:     http.StatusCreated,
		Success:    true,
		PHIFields:  clinicalRecordFields,
	})
	writeJSON(w, http.StatusCreated, rec)
}

type updateRecordRequest struct {
	Summary       string `json:"summary"`
	ClinicalNotes string `json:"clinical_notes"`
}

func (a *API) handleRecordResource(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/records/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, codeNotFound, "record not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		a.handleRecordGet(w, r, id)
	case http.MethodPut:
		a.handleRecordUpdate(w, r, id)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

func (a *API) handleRecordGet(w http.ResponseWriter, r *http.Request, id string) {
	rc, ok := a.authorize(w, r, perm.PermRecordsView)
	if !ok {
		return
	}
	rec, err := a.deps.Records.Get(r.Context(), rc, id)
	if err != nil {
		if errors.Is(err, pg.ErrNotFound) {
			// Missing and other-tenant rows answer identically.
			a.record(audit.Record{
				ActorID:    rc.AccountID,
				TenantID:   rc.TenantID,
				Resource:   "clinical_record",
				ResourceID: id,
				Verb:       audit.VerbRead,
				Status:     http.StatusNotFound,
				Error:      "not_found",
			})
			writeError(w, r, http.StatusNotFound, codeNotFound, "record not found")
			return
		}
		a.record(audit.Record{
			ActorID:    rc.AccountID,
			TenantID:   rc.TenantID,
			Resource:   "clinical_record",
			ResourceID: id,
			Verb:       audit.VerbRead,
			Status:     http.StatusInternalServerError,
			Error:      codeInternalError,
		})
		writeError(w, r, http.StatusInternalServerError, codeInternalError, "record lookup failed")
		return
	}
	a.record(audit.Record{
		ActorID:    rc.AccountID,
		TenantID:   auditTenant(rc, rec.TenantID),
		Resource:   "clinical_record",
		ResourceID: rec.ID,
		Verb:       audit.VerbRead,
		Status:     http.StatusOK,
		Success:    true,
		PHIFields:  clinicalRecordFields,
	})
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) handleRecordUpdate(w http.ResponseWriter, r *http.Request, id string) {
	rc, ok := a.authorize(w, r, perm.PermRecordsEdit)
	if !ok {
		return
	}
	var req updateRecordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}
	rec, err := a.deps.Records.Update(r.Context(), rc, id, req.Summary, req.ClinicalNotes)
	if err != nil {
		if errors.Is(err, pg.ErrNotFound) {
			a.record(audit.Record{
				ActorID:    rc.AccountID,
				TenantID:   rc.TenantID,
				Resource:   "clinical_record",
				ResourceID: id,
				Verb:       audit.VerbUpdate,
				Status:     http.StatusNotFound,
				Error:      "not_found",
			})
			writeError(w, r, http.StatusNotFound, codeNotFound, "record not found")
			return
		}
		a.record(audit.Record{
			ActorID:    rc.AccountID,
			TenantID:   rc.TenantID,
			Resource:   "clinical_record",
			ResourceID: id,
			Verb:       audit.VerbUpdate,
			Status:     http.StatusInternalServerError,
			Error:      codeInternalError,
		})
		writeError(w, r, http.StatusInternalServerError, codeInternalError, "record update failed")
		return
	}
	a.record(audit.Record{
		ActorID:    rc.AccountID,
		TenantID:   auditTenant(rc, rec.TenantID),
		Resource:   "clinical_record",
		ResourceID: rec.ID,
		Verb:       audit.VerbUpdate,
		Status:     http.StatusOK,
		Success:    true,
		PHIFields:  clinicalRecordFields,
	})
	writeJSON(w, http.StatusOK, rec)
}
