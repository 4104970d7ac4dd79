package server

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// listPatientFilterKeys is the /patients filter surface exposed on
// list_patients, passed through verbatim as query parameters.
var listPatientFilterKeys = []string{
	"facility_id",
	"full_name_startswith", "full_name_contains", "full_name",
	"first_name_startswith", "first_name_contains", "first_name",
	"last_name_startswith", "last_name_contains", "last_name",
	"record_id_startswith", "record_id_contains", "record_id",
	"category_id", "gender", "dob",
	"email_startswith", "email_contains", "email",
	"mobile_startswith", "mobile_contains", "mobile",
	"home_phone_startswith", "home_phone_contains", "home_phone",
	"work_phone_startswith", "work_phone_contains", "work_phone",
	"created_date_start", "created_date_end", "filter_by",
	"modified_time_greater_than", "modified_time_less_than",
	"modified_time_greater_equals", "modified_time_less_equals",
	"is_phr_account_available", "gender_identity",
	"state", "city", "country", "postal_code", "county", "district",
	"age_greater_equals", "age_lesser_equals",
	"patient_ids", "blood_group", "language", "marital_status",
	"source", "category", "sort_order", "sort_column",
	"page", "per_page",
}

// addressArgKeys are flattened address arguments nested into the payload's
// address object, matching the API's patient shape.
var addressArgKeys = []string{
	"address_line1", "address_line2", "area", "city", "state",
	"county_code", "country", "zip_code", "post_box", "district",
}

func patientDemographicOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("middle_name", mcp.Description("Middle name")),
		mcp.WithString("record_id", mcp.Description("Medical record ID")),
		mcp.WithString("dob", mcp.Description("Date of birth, yyyy-mm-dd. Required if age is not given")),
		mcp.WithNumber("age", mcp.Description("Age in years. Required if dob is not given")),
		mcp.WithString("nick_name", mcp.Description("Nickname")),
		mcp.WithString("gender_identity", mcp.Description("Gender identity")),
		mcp.WithString("address_line1", mcp.Description("Address line 1")),
		mcp.WithString("address_line2", mcp.Description("Address line 2")),
		mcp.WithString("area", mcp.Description("Area or neighborhood")),
		mcp.WithString("city", mcp.Description("City")),
		mcp.WithString("state", mcp.Description("Full state name, e.g. New Jersey")),
		mcp.WithString("country", mcp.Description("Two-letter country code. Required when any address field is set")),
		mcp.WithString("zip_code", mcp.Description("ZIP or postal code")),
		mcp.WithString("district", mcp.Description("District")),
		mcp.WithString("mobile", mcp.Description("Mobile phone")),
		mcp.WithString("home_phone", mcp.Description("Home phone")),
		mcp.WithString("work_phone", mcp.Description("Work phone")),
		mcp.WithString("email", mcp.Description("Email address")),
		mcp.WithString("primary_phone", mcp.Description("Primary phone: Home Phone, Mobile Phone, or Work Phone")),
		mcp.WithString("emergency_contact_name", mcp.Description("Emergency contact name")),
		mcp.WithString("emergency_contact_number", mcp.Description("Emergency contact number")),
		mcp.WithString("blood_group", mcp.Description("Blood group, e.g. O+, AB-")),
		mcp.WithString("language", mcp.Description("Preferred language")),
		mcp.WithString("marital_status", mcp.Description("Marital status: Single, Married, Other")),
		mcp.WithString("smoking_status", mcp.Description("Smoking status per Meaningful Use value set")),
		mcp.WithString("race", mcp.Description("Race")),
		mcp.WithString("ethnicity", mcp.Description("Ethnicity")),
		mcp.WithArray("categories", mcp.Description(`Patient categories: [{"category_id": <id>}]`)),
		mcp.WithArray("caregivers", mcp.Description("Caregiver records with contact and address objects")),
		mcp.WithBoolean("send_phr_invite", mcp.Description("Send a PHR portal invitation on creation")),
		mcp.WithBoolean("duplicate_check", mcp.Description("Reject likely duplicate records (default true)")),
	}
}

func (s *Server) registerPatientTools() {
	listOptions := []mcp.ToolOption{
		mcp.WithDescription("List patients with the full CharmHealth filter surface. All filters are optional; an empty result set is a normal outcome."),
	}
	for _, key := range listPatientFilterKeys {
		listOptions = append(listOptions, mcp.WithString(key, mcp.Description("Filter: "+key)))
	}
	s.addTool(mcp.NewTool("list_patients", listOptions...), s.handleListPatients)

	detailsTool := mcp.NewTool("get_patient_details",
		mcp.WithDescription("Get the full demographic and contact record for one patient."),
		mcp.WithString("patient_id",
			mcp.Required(),
			mcp.Description("Patient ID from find_patients or list_patients"),
		),
	)
	s.addTool(detailsTool, s.handleGetPatientDetails)

	addOptions := []mcp.ToolOption{
		mcp.WithDescription("Register a new patient. Requires first_name, last_name, gender, facilities, and either dob or age."),
		mcp.WithString("first_name", mcp.Required(), mcp.Description("First name (max 35 chars)")),
		mcp.WithString("last_name", mcp.Required(), mcp.Description("Last name (max 35 chars)")),
		mcp.WithString("gender", mcp.Required(), mcp.Description("Gender: male, female, unknown, other")),
		mcp.WithArray("facilities", mcp.Required(), mcp.Description(`Facility assignments: [{"facility_id": <id>}]`)),
	}
	addOptions = append(addOptions, patientDemographicOptions()...)
	s.addTool(mcp.NewTool("add_patient", addOptions...), s.handleAddPatient)

	updateOptions := []mcp.ToolOption{
		mcp.WithDescription("Update an existing patient record. The API replaces the record, so pass the current values for fields that should not change."),
		mcp.WithString("patient_id", mcp.Required(), mcp.Description("Patient ID to update")),
		mcp.WithString("first_name", mcp.Required(), mcp.Description("First name")),
		mcp.WithString("last_name", mcp.Required(), mcp.Description("Last name")),
		mcp.WithString("gender", mcp.Required(), mcp.Description("Gender: male, female, unknown, other")),
		mcp.WithArray("facilities", mcp.Required(), mcp.Description(`Facility assignments: [{"facility_id": <id>}]`)),
	}
	updateOptions = append(updateOptions, patientDemographicOptions()...)
	s.addTool(mcp.NewTool("update_patient", updateOptions...), s.handleUpdatePatient)
}

func (s *Server) handleListPatients(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	query := queryFromArgs(args, listPatientFilterKeys...)
	resp, err := s.client.Get(ctx, "/patients", query)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(resp.Body)), nil
}

func (s *Server) handleGetPatientDetails(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	patientID, err := requireString(args, "patient_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	resp, err := s.client.Get(ctx, "/patients/"+patientID, nil)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(resp.Body)), nil
}

// patientPayload builds the /patients request body, nesting flattened
// address arguments under the address object.
func patientPayload(args map[string]interface{}) map[string]interface{} {
	payload := payloadFromArgs(args, append([]string{"patient_id"}, addressArgKeys...)...)
	address := map[string]interface{}{}
	for _, key := range addressArgKeys {
		if v, ok := args[key]; ok && v != nil {
			address[key] = v
		}
	}
	if len(address) > 0 {
		payload["address"] = address
	}
	return payload
}

func (s *Server) handleAddPatient(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	for _, field := range []string{"first_name", "last_name", "gender"} {
		if _, err := requireString(args, field); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	if _, ok := args["facilities"]; !ok {
		return mcp.NewToolResultError("missing or invalid 'facilities' argument"), nil
	}

	resp, err := s.client.Post(ctx, "/patients", patientPayload(args))
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(resp.Body)), nil
}

func (s *Server) handleUpdatePatient(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	patientID, err := requireString(args, "patient_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	resp, err := s.client.Put(ctx, "/patients/"+patientID, patientPayload(args))
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(resp.Body)), nil
}
