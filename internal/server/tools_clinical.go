package server

import (
	"context"
	"net/url"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerClinicalTools() {
	vitalsTool := mcp.NewTool("manage_patient_vitals",
		mcp.WithDescription("Record, list, or correct patient vital signs. New vitals must be linked to an encounter."),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Description("Operation: add, list, or update"),
			mcp.Enum("add", "list", "update"),
		),
		mcp.WithString("patient_id", mcp.Required(), mcp.Description("Patient ID")),
		mcp.WithString("encounter_id", mcp.Description("Encounter the vitals belong to (required for add)")),
		mcp.WithString("record_id", mcp.Description("Vital record ID (required for update)")),
		mcp.WithObject("vitals", mcp.Description(`Vitals map, e.g. {"Weight": "70 kg", "Blood Pressure": "120/80 mmHg"}`)),
		mcp.WithString("vital_name", mcp.Description("Single vital name, alternative to the vitals map")),
		mcp.WithString("vital_value", mcp.Description("Single vital value")),
		mcp.WithString("vital_unit", mcp.Description("Single vital unit")),
		mcp.WithString("start_date", mcp.Description("List filter: earliest date, yyyy-mm-dd")),
		mcp.WithString("end_date", mcp.Description("List filter: latest date, yyyy-mm-dd")),
		mcp.WithNumber("limit", mcp.Description("List page size (default 50)")),
	)
	s.addTool(vitalsTool, s.handleManageVitals)

	medsTool := mcp.NewTool("manage_patient_medications",
		mcp.WithDescription("Unified drug management: prescribe medications, document supplements and vitamins, update or discontinue them, with an allergy check before prescribing."),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Description("Operation: add, update, discontinue, or list"),
			mcp.Enum("add", "update", "discontinue", "list"),
		),
		mcp.WithString("patient_id", mcp.Required(), mcp.Description("Patient ID")),
		mcp.WithString("substance_type",
			mcp.Description("Substance class (default medication)"),
			mcp.Enum("medication", "supplement", "vitamin"),
		),
		mcp.WithString("record_id", mcp.Description("Record ID (required for update and discontinue)")),
		mcp.WithString("drug_name", mcp.Description("Drug or supplement name")),
		mcp.WithString("directions", mcp.Description(`Medication directions, e.g. "Take 1 tablet by mouth once daily"`)),
		mcp.WithNumber("dosage", mcp.Description("Supplement dosage as an integer; use strength for units")),
		mcp.WithString("strength", mcp.Description(`Strength description, e.g. "500mg"`)),
		mcp.WithString("frequency", mcp.Description("Intake frequency")),
		mcp.WithString("refills", mcp.Description("Refill count (default 0)")),
		mcp.WithString("start_date", mcp.Description("Start date, yyyy-mm-dd")),
		mcp.WithString("end_date", mcp.Description("Stop date, yyyy-mm-dd")),
		mcp.WithString("status",
			mcp.Description("Record status (default active)"),
			mcp.Enum("active", "inactive"),
		),
		mcp.WithString("encounter_id", mcp.Description("Encounter to link the record to")),
		mcp.WithString("route", mcp.Description("Supplement route")),
		mcp.WithString("dose_form", mcp.Description("Supplement dose form")),
		mcp.WithString("comments", mcp.Description("Free-text comments")),
		mcp.WithBoolean("check_allergies", mcp.Description("Check documented allergies before prescribing (default true)")),
	)
	s.addTool(medsTool, s.handleManageMedications)

	allergiesTool := mcp.NewTool("manage_patient_allergies",
		mcp.WithDescription("Document, list, update, or delete patient allergies. Safety critical: check allergies before prescribing."),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Description("Operation: add, list, update, or delete"),
			mcp.Enum("add", "list", "update", "delete"),
		),
		mcp.WithString("patient_id", mcp.Required(), mcp.Description("Patient ID")),
		mcp.WithString("record_id", mcp.Description("Allergy record ID (required for update and delete)")),
		mcp.WithString("allergen", mcp.Description(`Allergen, e.g. "Penicillin", "Latex"`)),
		mcp.WithString("allergy_type", mcp.Description("Allergy type")),
		mcp.WithString("severity", mcp.Description("Severity: Mild, Moderate, Severe, or Life-threatening")),
		mcp.WithString("reactions", mcp.Description("Observed reactions")),
		mcp.WithString("allergy_status", mcp.Description("Status (default Active)")),
		mcp.WithString("allergy_date", mcp.Description("Onset or documentation date, yyyy-mm-dd")),
		mcp.WithString("comments", mcp.Description("Free-text comments")),
	)
	s.addTool(allergiesTool, s.handleManageAllergies)

	diagnosesTool := mcp.NewTool("manage_patient_diagnoses",
		mcp.WithDescription("Maintain the patient problem list: add, list, update, or delete diagnoses with ICD10/SNOMED coding."),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Description("Operation: add, list, update, or delete"),
			mcp.Enum("add", "list", "update", "delete"),
		),
		mcp.WithString("patient_id", mcp.Required(), mcp.Description("Patient ID")),
		mcp.WithString("record_id", mcp.Description("Diagnosis record ID (required for update and delete)")),
		mcp.WithString("diagnosis_name", mcp.Description("Diagnosis name (required for add)")),
		mcp.WithString("diagnosis_code", mcp.Description("Diagnosis code (required for add)")),
		mcp.WithString("code_type",
			mcp.Description("Coding system (required for add)"),
			mcp.Enum("ICD10", "SNOMED"),
		),
		mcp.WithString("diagnosis_status",
			mcp.Description("Status (default Active)"),
			mcp.Enum("Active", "Inactive", "Resolved"),
		),
		mcp.WithString("from_date", mcp.Description("Onset date, yyyy-mm-dd")),
		mcp.WithString("to_date", mcp.Description("Resolution date, yyyy-mm-dd")),
		mcp.WithString("encounter_id", mcp.Description("Encounter to link for billing")),
		mcp.WithNumber("diagnosis_order", mcp.Description("Ordering within the problem list")),
		mcp.WithString("comments", mcp.Description("Free-text comments")),
	)
	s.addTool(diagnosesTool, s.handleManageDiagnoses)
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

// splitVitalValue parses "120/80 mmHg" into value and unit.
func splitVitalValue(raw string) (value, unit string) {
	parts := strings.Fields(raw)
	if len(parts) == 0 {
		return raw, ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

// vitalsListFromArgs accepts either the vitals map or the individual
// vital_name/value/unit fields.
func vitalsListFromArgs(args map[string]interface{}) []map[string]string {
	var list []map[string]string
	if vitals, ok := args["vitals"].(map[string]interface{}); ok {
		for name, raw := range vitals {
			text, ok := raw.(string)
			if !ok {
				continue
			}
			value, unit := splitVitalValue(text)
			list = append(list, map[string]string{
				"vital_name":  name,
				"vital_value": value,
				"vital_unit":  unit,
			})
		}
		return list
	}
	if name := stringArg(args, "vital_name"); name != "" {
		if value := stringArg(args, "vital_value"); value != "" {
			list = append(list, map[string]string{
				"vital_name":  name,
				"vital_value": value,
				"vital_unit":  stringArg(args, "vital_unit"),
			})
		}
	}
	return list
}

func (s *Server) handleManageVitals(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	action, err := requireString(args, "action")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	patientID, err := requireString(args, "patient_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	switch action {
	case "list":
		query := queryFromArgs(args, "start_date", "end_date", "limit")
		resp, err := s.client.Get(ctx, "/patients/"+patientID+"/vitals", query)
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(resp.Body)), nil

	case "add":
		encounterID, err := requireString(args, "encounter_id")
		if err != nil {
			return mcp.NewToolResultError("encounter_id is required when adding vitals; create an encounter first with manage_encounter"), nil
		}
		vitals := vitalsListFromArgs(args)
		if len(vitals) == 0 {
			return mcp.NewToolResultError("provide either a vitals map or vital_name and vital_value"), nil
		}
		payload := []map[string]interface{}{{
			"encounter_id": encounterID,
			"vitals":       vitals,
		}}
		resp, err := s.client.Post(ctx, "/patients/"+patientID+"/vitals", payload)
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(resp.Body)), nil

	case "update":
		recordID, err := requireString(args, "record_id")
		if err != nil {
			return mcp.NewToolResultError("record_id is required for updates; use action='list' to find it"), nil
		}
		vitals := vitalsListFromArgs(args)
		if len(vitals) == 0 {
			return mcp.NewToolResultError("provide either a vitals map or vital_name and vital_value"), nil
		}
		payload := map[string]interface{}{"vitals": vitals}
		if v := stringArg(args, "encounter_id"); v != "" {
			payload["encounter_id"] = v
		}
		resp, err := s.client.Put(ctx, "/patients/"+patientID+"/vitals/"+recordID, payload)
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(resp.Body)), nil

	default:
		return mcp.NewToolResultError("unknown action: " + action), nil
	}
}

func (s *Server) handleManageMedications(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	action, err := requireString(args, "action")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	patientID, err := requireString(args, "patient_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	substanceType := stringArg(args, "substance_type")
	if substanceType == "" {
		substanceType = "medication"
	}
	isMedication := substanceType == "medication"
	status := stringArg(args, "status")
	if status == "" {
		status = "active"
	}

	switch action {
	case "list":
		path := "/patients/" + patientID + "/supplements"
		if isMedication {
			path = "/patients/" + patientID + "/medications"
		}
		resp, err := s.client.Get(ctx, path, nil)
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(resp.Body)), nil

	case "add":
		// Allergy review before prescribing, unless explicitly disabled.
		checkAllergies := true
		if v, ok := args["check_allergies"].(bool); ok {
			checkAllergies = v
		}
		if checkAllergies && isMedication {
			if resp, err := s.client.Get(ctx, "/patients/"+patientID+"/allergies", nil); err == nil {
				var body struct {
					Allergies []map[string]interface{} `json:"allergies"`
				}
				if derr := resp.Decode(&body); derr == nil && len(body.Allergies) > 0 {
					s.logger.Warning("Patient %s has %d documented allergies; review before prescribing", patientID, len(body.Allergies))
				}
			}
		}

		if isMedication {
			drugName, derr := requireString(args, "drug_name")
			directions, direrr := requireString(args, "directions")
			if derr != nil || direrr != nil {
				return mcp.NewToolResultError("medications require drug_name and directions"), nil
			}
			refills := stringArg(args, "refills")
			if refills == "" {
				refills = "0"
			}
			med := map[string]interface{}{
				"drug_name":          drugName,
				"is_active":          status == "active",
				"directions":         directions,
				"dispense":           30.0,
				"refills":            refills,
				"substitute_generic": true,
				"manufacturing_type": "Manufactured",
			}
			if v := stringArg(args, "strength"); v != "" {
				med["strength_description"] = v
			}
			if v := stringArg(args, "start_date"); v != "" {
				med["start_date"] = v
			}
			if v := stringArg(args, "end_date"); v != "" {
				med["stop_date"] = v
			}
			resp, err := s.client.Post(ctx, "/patients/"+patientID+"/medications", []interface{}{med})
			if err != nil {
				return nil, err
			}
			return mcp.NewToolResultText(string(resp.Body)), nil
		}

		drugName, derr := requireString(args, "drug_name")
		dosage, ok := args["dosage"].(float64)
		if derr != nil || !ok {
			return mcp.NewToolResultError("supplements require drug_name and an integer dosage; use strength for units"), nil
		}
		supplement := map[string]interface{}{
			"supplement_name": drugName,
			"dosage":          int(dosage),
			"supplement_type": "Manufactured",
			"status":          titleCase(status),
		}
		for arg, field := range map[string]string{
			"strength":   "strength",
			"start_date": "start_date",
			"end_date":   "end_date",
			"frequency":  "frequency",
			"route":      "route",
			"dose_form":  "dose_form",
			"comments":   "comments",
		} {
			if v := stringArg(args, arg); v != "" {
				supplement[field] = v
			}
		}
		if v := stringArg(args, "encounter_id"); v != "" {
			supplement["encounter_id"] = numericID(v)
		}
		if _, present := supplement["comments"]; !present {
			if v := stringArg(args, "directions"); v != "" {
				supplement["comments"] = v
			}
		}
		resp, err := s.client.Post(ctx, "/patients/"+patientID+"/supplements", []interface{}{supplement})
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(resp.Body)), nil

	case "update":
		recordID, rerr := requireString(args, "record_id")
		if rerr != nil {
			return mcp.NewToolResultError("record_id is required for updates; use action='list' to find it"), nil
		}
		update := map[string]interface{}{}
		if isMedication {
			if v := stringArg(args, "drug_name"); v != "" {
				update["drug_name"] = v
			}
			if v := stringArg(args, "directions"); v != "" {
				update["directions"] = v
			}
			if v := stringArg(args, "refills"); v != "" {
				update["refills"] = v
			}
			if v := stringArg(args, "strength"); v != "" {
				update["strength_description"] = v
			}
			update["is_active"] = status == "active"
			resp, err := s.client.Put(ctx, "/patients/"+patientID+"/medications/"+recordID, update)
			if err != nil {
				return nil, err
			}
			return mcp.NewToolResultText(string(resp.Body)), nil
		}
		if v := stringArg(args, "drug_name"); v != "" {
			update["supplement_name"] = v
		}
		if v, ok := args["dosage"].(float64); ok {
			update["dosage"] = int(v)
		}
		if v := stringArg(args, "strength"); v != "" {
			update["strength"] = v
		}
		if v := stringArg(args, "frequency"); v != "" {
			update["frequency"] = v
		}
		update["status"] = titleCase(status)
		resp, err := s.client.Put(ctx, "/patients/"+patientID+"/supplements/"+recordID, update)
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(resp.Body)), nil

	case "discontinue":
		recordID, rerr := requireString(args, "record_id")
		if rerr != nil {
			return mcp.NewToolResultError("record_id is required to discontinue; use action='list' to find it"), nil
		}
		path := "/patients/" + patientID + "/supplements/" + recordID
		payload := map[string]interface{}{"status": "Inactive"}
		if isMedication {
			path = "/patients/" + patientID + "/medications/" + recordID
			payload = map[string]interface{}{"is_active": false}
		}
		resp, err := s.client.Put(ctx, path, payload)
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(resp.Body)), nil

	default:
		return mcp.NewToolResultError("unknown action: " + action), nil
	}
}

func (s *Server) handleManageAllergies(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	action, err := requireString(args, "action")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	patientID, err := requireString(args, "patient_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	switch action {
	case "list":
		resp, err := s.client.Get(ctx, "/patients/"+patientID+"/allergies", nil)
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(resp.Body)), nil

	case "add":
		for _, field := range []string{"allergen", "allergy_type", "severity", "reactions", "allergy_date"} {
			if _, rerr := requireString(args, field); rerr != nil {
				return mcp.NewToolResultError("allergies require allergen, allergy_type, severity, reactions, and allergy_date"), nil
			}
		}
		status := stringArg(args, "allergy_status")
		if status == "" {
			status = "Active"
		}
		payload := map[string]interface{}{
			"allergen":  stringArg(args, "allergen"),
			"type":      stringArg(args, "allergy_type"),
			"severity":  stringArg(args, "severity"),
			"reactions": stringArg(args, "reactions"),
			"date":      stringArg(args, "allergy_date"),
			"status":    status,
		}
		if v := stringArg(args, "comments"); v != "" {
			payload["comments"] = v
		}
		resp, err := s.client.Post(ctx, "/patients/"+patientID+"/allergies", payload)
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(resp.Body)), nil

	case "update":
		recordID, rerr := requireString(args, "record_id")
		if rerr != nil {
			return mcp.NewToolResultError("record_id is required for updates; use action='list' to find it"), nil
		}
		update := map[string]interface{}{}
		for arg, field := range map[string]string{
			"allergen":       "allergen",
			"allergy_type":   "type",
			"severity":       "severity",
			"reactions":      "reactions",
			"allergy_status": "status",
			"allergy_date":   "date",
			"comments":       "comments",
		} {
			if v := stringArg(args, arg); v != "" {
				update[field] = v
			}
		}
		resp, err := s.client.Put(ctx, "/patients/"+patientID+"/allergies/"+recordID, update)
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(resp.Body)), nil

	case "delete":
		recordID, rerr := requireString(args, "record_id")
		if rerr != nil {
			return mcp.NewToolResultError("record_id is required for deletion; use action='list' to find it"), nil
		}
		resp, err := s.client.Delete(ctx, "/patients/"+patientID+"/allergies/"+recordID)
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(resp.Body)), nil

	default:
		return mcp.NewToolResultError("unknown action: " + action), nil
	}
}

func (s *Server) handleManageDiagnoses(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	action, err := requireString(args, "action")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	patientID, err := requireString(args, "patient_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	switch action {
	case "list":
		query := url.Values{}
		if v := stringArg(args, "encounter_id"); v != "" {
			query.Set("encounter_id", v)
		}
		resp, err := s.client.Get(ctx, "/patients/"+patientID+"/diagnoses", query)
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(resp.Body)), nil

	case "add":
		for _, field := range []string{"diagnosis_name", "diagnosis_code", "code_type"} {
			if _, rerr := requireString(args, field); rerr != nil {
				return mcp.NewToolResultError("diagnoses require diagnosis_name, diagnosis_code, and code_type"), nil
			}
		}
		status := stringArg(args, "diagnosis_status")
		if status == "" {
			status = "Active"
		}
		diagnosis := map[string]interface{}{
			"name":      stringArg(args, "diagnosis_name"),
			"code":      stringArg(args, "diagnosis_code"),
			"code_type": stringArg(args, "code_type"),
			"status":    status,
		}
		if v := stringArg(args, "encounter_id"); v != "" {
			diagnosis["encounter_id"] = numericID(v)
		}
		for _, field := range []string{"comments", "from_date", "to_date"} {
			if v := stringArg(args, field); v != "" {
				diagnosis[field] = v
			}
		}
		if v, ok := args["diagnosis_order"].(float64); ok {
			diagnosis["diagnosis_order"] = int(v)
		}
		resp, err := s.client.Post(ctx, "/patients/"+patientID+"/diagnoses", []interface{}{diagnosis})
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(resp.Body)), nil

	case "update":
		recordID, rerr := requireString(args, "record_id")
		if rerr != nil {
			return mcp.NewToolResultError("record_id is required for updates; use action='list' to find it"), nil
		}
		update := map[string]interface{}{}
		for arg, field := range map[string]string{
			"diagnosis_status": "status",
			"comments":         "comments",
			"from_date":        "from_date",
			"to_date":          "to_date",
		} {
			if v := stringArg(args, arg); v != "" {
				update[field] = v
			}
		}
		resp, err := s.client.Put(ctx, "/patients/"+patientID+"/diagnoses/"+recordID, update)
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(resp.Body)), nil

	case "delete":
		recordID, rerr := requireString(args, "record_id")
		if rerr != nil {
			return mcp.NewToolResultError("record_id is required for deletion; use action='list' to find it"), nil
		}
		resp, err := s.client.Delete(ctx, "/patients/"+patientID+"/diagnoses/"+recordID)
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(resp.Body)), nil

	default:
		return mcp.NewToolResultError("unknown action: " + action), nil
	}
}
