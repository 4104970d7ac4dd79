package server

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerEncounterTools() {
	tool := mcp.NewTool("manage_encounter",
		mcp.WithDescription("Encounter workflow: create a SOAP encounter, review it with its clinical documentation, sign it, unlock a signed encounter, or update its notes."),
		mcp.WithString("patient_id",
			mcp.Required(),
			mcp.Description("Patient the encounter belongs to"),
		),
		mcp.WithString("action",
			mcp.Description("Operation: create (default), review, sign, unlock, or update"),
			mcp.Enum("create", "review", "sign", "unlock", "update"),
		),
		mcp.WithString("encounter_id", mcp.Description("Encounter ID (required for review, sign, unlock, update)")),
		mcp.WithString("provider_id", mcp.Description("Provider ID (required for create)")),
		mcp.WithString("facility_id", mcp.Description("Facility ID (required for create)")),
		mcp.WithString("encounter_date", mcp.Description("Encounter date, yyyy-mm-dd (required for create)")),
		mcp.WithString("appointment_id", mcp.Description("Create the encounter from an existing appointment")),
		mcp.WithString("visit_type_id", mcp.Description("Visit type ID")),
		mcp.WithString("encounter_mode",
			mcp.Description("Encounter mode (default In Person)"),
			mcp.Enum("In Person", "Phone Call", "Video Consult"),
		),
		mcp.WithString("chief_complaint", mcp.Description("Chief complaint recorded in the clinical notes")),
		mcp.WithString("reason", mcp.Description("Unlock justification (required for unlock)")),
	)
	s.addTool(tool, s.handleManageEncounter)
}

func (s *Server) handleManageEncounter(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	patientID, err := requireString(args, "patient_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	action := stringArg(args, "action")
	if action == "" {
		action = "create"
	}

	switch action {
	case "create":
		return s.createEncounter(ctx, patientID, args)
	case "review":
		return s.reviewEncounter(ctx, patientID, args)
	case "sign":
		encounterID, err := requireString(args, "encounter_id")
		if err != nil {
			return mcp.NewToolResultError("encounter_id is required for signing"), nil
		}
		// Verify the encounter exists before attempting the signature.
		if _, err := s.client.Get(ctx, "/soap/encounters/"+encounterID, nil); err != nil {
			return nil, err
		}
		resp, err := s.client.Post(ctx, "/patients/"+patientID+"/encounters/"+encounterID+"/sign", nil)
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(resp.Body)), nil
	case "unlock":
		encounterID, err := requireString(args, "encounter_id")
		if err != nil {
			return mcp.NewToolResultError("encounter_id is required for unlocking"), nil
		}
		reason, err := requireString(args, "reason")
		if err != nil {
			return mcp.NewToolResultError("reason is required for unlocking a signed encounter"), nil
		}
		resp, err := s.client.Post(ctx, "/encounters/"+encounterID+"/unlock", map[string]interface{}{"reason": reason})
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(resp.Body)), nil
	case "update":
		encounterID, err := requireString(args, "encounter_id")
		if err != nil {
			return mcp.NewToolResultError("encounter_id is required for updating"), nil
		}
		payload := map[string]interface{}{}
		if v := stringArg(args, "chief_complaint"); v != "" {
			payload["chief_complaints"] = v
		}
		resp, err := s.client.Post(ctx, "/soap/encounters/"+encounterID, payload)
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(resp.Body)), nil
	default:
		return mcp.NewToolResultError("unknown action: " + action), nil
	}
}

func (s *Server) createEncounter(ctx context.Context, patientID string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	appointmentID := stringArg(args, "appointment_id")

	var resp *createEncounterResponse
	if appointmentID != "" {
		raw, err := s.client.Post(ctx, "/appointments/"+appointmentID+"/encounter", map[string]interface{}{"chart_type": "SOAP"})
		if err != nil {
			return nil, err
		}
		resp = &createEncounterResponse{}
		if err := raw.Decode(resp); err != nil {
			return nil, err
		}
	} else {
		for _, field := range []string{"provider_id", "facility_id", "encounter_date"} {
			if _, err := requireString(args, field); err != nil {
				return mcp.NewToolResultError("to create an encounter provide patient_id, provider_id, facility_id, and encounter_date (or an appointment_id)"), nil
			}
		}
		mode := stringArg(args, "encounter_mode")
		if mode == "" {
			mode = "In Person"
		}
		payload := map[string]interface{}{
			"provider_id":    stringArg(args, "provider_id"),
			"facility_id":    stringArg(args, "facility_id"),
			"date":           stringArg(args, "encounter_date"),
			"chart_type":     "SOAP",
			"encounter_mode": mode,
		}
		if v := stringArg(args, "visit_type_id"); v != "" {
			payload["visittype_id"] = v
		}
		raw, err := s.client.Post(ctx, "/patients/"+patientID+"/encounter", payload)
		if err != nil {
			return nil, err
		}
		resp = &createEncounterResponse{}
		if err := raw.Decode(resp); err != nil {
			return nil, err
		}
	}

	if resp.Encounter.EncounterID == "" {
		return mcp.NewToolResultError("failed to create encounter: check that the patient, provider, and facility IDs are valid and the appointment has not already been charted"), nil
	}

	result := map[string]interface{}{
		"action":       "create",
		"encounter_id": resp.Encounter.EncounterID,
	}

	// Persist the chief complaint into the chart note when given.
	if complaint := stringArg(args, "chief_complaint"); complaint != "" {
		_, err := s.client.Post(ctx,
			"/patients/"+patientID+"/encounters/"+resp.Encounter.EncounterID+"/save",
			map[string]interface{}{"chief_complaints": complaint})
		if err != nil {
			return nil, err
		}
		result["clinical_notes_saved"] = true
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(payload)), nil
}

type createEncounterResponse struct {
	Encounter struct {
		EncounterID string `json:"encounter_id"`
	} `json:"encounter"`
}

// reviewEncounter aggregates the encounter record with its vitals,
// diagnoses, and medications into a single review document.
func (s *Server) reviewEncounter(ctx context.Context, patientID string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	encounterID, err := requireString(args, "encounter_id")
	if err != nil {
		return mcp.NewToolResultError("encounter_id is required for review"), nil
	}

	listResp, err := s.client.Get(ctx, "/encounters", url.Values{"patient_id": {patientID}})
	if err != nil {
		return nil, err
	}
	var encounters struct {
		Encounters []map[string]interface{} `json:"encounters"`
	}
	if err := listResp.Decode(&encounters); err != nil {
		return nil, err
	}

	var encounter map[string]interface{}
	for _, e := range encounters.Encounters {
		if id, _ := e["encounter_id"].(string); id == encounterID {
			encounter = e
			break
		}
	}
	if encounter == nil {
		return mcp.NewToolResultError("no encounter found with ID " + encounterID + " for patient " + patientID), nil
	}

	details := map[string]interface{}{
		"encounter_info": encounter,
	}

	if patientResp, err := s.client.Get(ctx, "/patients/"+patientID, nil); err == nil {
		var patient struct {
			Patient map[string]interface{} `json:"patient"`
		}
		if derr := patientResp.Decode(&patient); derr == nil && patient.Patient != nil {
			details["patient_info"] = patient.Patient
		}
	}

	// Clinical documentation fetches are best-effort: a missing section
	// is reported as empty rather than failing the review.
	encounterQuery := url.Values{"patient_id": {patientID}, "encounter_id": {encounterID}}
	for _, section := range []struct {
		path, listKey, resultKey string
	}{
		{"/vitals", "vitals", "vitals"},
		{"/diagnoses", "diagnoses", "diagnoses"},
		{"/drugs", "drugs", "medications"},
	} {
		details[section.resultKey] = []interface{}{}
		resp, err := s.client.Get(ctx, section.path, encounterQuery)
		if err != nil {
			continue
		}
		var body map[string]json.RawMessage
		if derr := resp.Decode(&body); derr != nil {
			continue
		}
		if items, ok := body[section.listKey]; ok {
			details[section.resultKey] = items
		}
	}

	status, _ := encounter["status"].(string)
	result := map[string]interface{}{
		"action":            "review",
		"encounter_details": details,
		"is_signed":         status == "signed",
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(payload)), nil
}
