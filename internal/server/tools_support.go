package server

import (
	"context"
	"net/url"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerSupportTools() {
	notesTool := mcp.NewTool("manage_patient_notes",
		mcp.WithDescription("Quick clinical notes visible across all patient interactions: care instructions, provider alerts, patient preferences. Formal encounter notes belong in manage_encounter."),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Description("Operation: add, list, update, or delete"),
			mcp.Enum("add", "list", "update", "delete"),
		),
		mcp.WithString("patient_id", mcp.Required(), mcp.Description("Patient ID")),
		mcp.WithString("record_id", mcp.Description("Note record ID (required for update and delete)")),
		mcp.WithString("notes", mcp.Description("Note content (required for add and update)")),
	)
	s.addTool(notesTool, s.handleManageNotes)

	recallsTool := mcp.NewTool("manage_patient_recalls",
		mcp.WithDescription("Preventive care and follow-up reminders: annual physicals, screenings, medication reviews, with optional automated email and text reminders."),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Description("Operation: add, list, update, or delete"),
			mcp.Enum("add", "list", "update", "delete"),
		),
		mcp.WithString("patient_id", mcp.Required(), mcp.Description("Patient ID")),
		mcp.WithString("record_id", mcp.Description("Recall record ID (required for update and delete)")),
		mcp.WithString("recall_type", mcp.Description(`Recall type, e.g. "Annual Physical", "Mammogram", "Lab Follow-up"`)),
		mcp.WithString("provider_id", mcp.Description("Provider responsible for the recall; see get_practice_info")),
		mcp.WithString("facility_id", mcp.Description("Facility for the recall; see get_practice_info")),
		mcp.WithString("recall_date", mcp.Description("Due date, yyyy-mm-dd")),
		mcp.WithNumber("recall_time", mcp.Description("Relative due time; pair with recall_timeunit")),
		mcp.WithString("recall_timeunit", mcp.Description("Unit for recall_time, e.g. weeks, months")),
		mcp.WithString("recall_period", mcp.Description("Recurrence period")),
		mcp.WithString("notes", mcp.Description("Recall notes (required for add)")),
		mcp.WithString("encounter_id", mcp.Description("Encounter that prompted the recall")),
		mcp.WithBoolean("send_email_reminder", mcp.Description("Send automated email reminder")),
		mcp.WithNumber("email_reminder_before", mcp.Description("Days before due date to email")),
		mcp.WithBoolean("send_text_reminder", mcp.Description("Send automated text reminder")),
		mcp.WithNumber("text_reminder_before", mcp.Description("Days before due date to text")),
	)
	s.addTool(recallsTool, s.handleManageRecalls)

	filesTool := mcp.NewTool("manage_patient_files",
		mcp.WithDescription("Patient file housekeeping: remove the profile photo or send a PHR (Personal Health Record) portal invitation."),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Description("Operation: delete_photo or send_phr_invite"),
			mcp.Enum("delete_photo", "send_phr_invite"),
		),
		mcp.WithString("patient_id", mcp.Required(), mcp.Description("Patient ID")),
		mcp.WithString("email", mcp.Description("Email to send the PHR invitation to (required for send_phr_invite)")),
		mcp.WithString("rep_first_name", mcp.Description("Representative first name, when the invite goes to a representative")),
		mcp.WithString("rep_last_name", mcp.Description("Representative last name")),
	)
	s.addTool(filesTool, s.handleManageFiles)

	labsTool := mcp.NewTool("manage_patient_labs",
		mcp.WithDescription("Laboratory results: list results with filtering, fetch a detailed report, or upload new results."),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Description("Operation: list, get_details, or add_result"),
			mcp.Enum("list", "get_details", "add_result"),
		),
		mcp.WithString("patient_id", mcp.Description("Patient ID (required for add_result, optional list filter)")),
		mcp.WithString("group_id", mcp.Description("Result group ID for get_details")),
		mcp.WithString("lab_order_id", mcp.Description("Lab order ID for get_details, when no group_id exists")),
		mcp.WithString("reviewer_id", mcp.Description("List filter: reviewing provider")),
		mcp.WithNumber("status", mcp.Description("List filter: 0 pending, 2 final")),
		mcp.WithNumber("start_index", mcp.Description("List pagination offset")),
		mcp.WithNumber("no_of_records", mcp.Description("List page size")),
		mcp.WithString("sort_by",
			mcp.Description("List sort column"),
			mcp.Enum("DATE", "FULL_NAME"),
		),
		mcp.WithBoolean("is_ascending", mcp.Description("List sort direction")),
		mcp.WithObject("result_details", mcp.Description("Structured result payload with tests, parameters, and values (required for add_result)")),
	)
	s.addTool(labsTool, s.handleManageLabs)
}

func (s *Server) handleManageNotes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
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
		resp, err := s.client.Get(ctx, "/patients/"+patientID+"/quicknotes", nil)
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(resp.Body)), nil

	case "add":
		notes, rerr := requireString(args, "notes")
		if rerr != nil {
			return mcp.NewToolResultError("notes content is required when adding a note"), nil
		}
		resp, err := s.client.Post(ctx, "/patients/"+patientID+"/quicknotes", map[string]string{"notes": notes})
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(resp.Body)), nil

	case "update":
		recordID, rerr := requireString(args, "record_id")
		notes, nerr := requireString(args, "notes")
		if rerr != nil || nerr != nil {
			return mcp.NewToolResultError("record_id and notes content are required for updates; use action='list' to find the record_id"), nil
		}
		resp, err := s.client.Put(ctx, "/patients/quicknotes/"+recordID, map[string]string{"notes": notes})
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(resp.Body)), nil

	case "delete":
		recordID, rerr := requireString(args, "record_id")
		if rerr != nil {
			return mcp.NewToolResultError("record_id is required for deletion; use action='list' to find it"), nil
		}
		resp, err := s.client.Delete(ctx, "/patients/quicknotes/"+recordID)
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(resp.Body)), nil

	default:
		return mcp.NewToolResultError("unknown action: " + action), nil
	}
}

func (s *Server) handleManageRecalls(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
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
		resp, err := s.client.Get(ctx, "/patients/"+patientID+"/recalls", nil)
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(resp.Body)), nil

	case "add":
		for _, field := range []string{"recall_type", "notes", "provider_id", "facility_id"} {
			if _, rerr := requireString(args, field); rerr != nil {
				return mcp.NewToolResultError("recalls require recall_type, notes, provider_id, and facility_id; use get_practice_info for valid provider and facility IDs"), nil
			}
		}
		recall := map[string]interface{}{
			"recall_type": stringArg(args, "recall_type"),
			"notes":       stringArg(args, "notes"),
			"provider_id": stringArg(args, "provider_id"),
			"facility_id": stringArg(args, "facility_id"),
		}
		for _, field := range []string{"recall_date", "recall_timeunit", "recall_period"} {
			if v := stringArg(args, field); v != "" {
				recall[field] = v
			}
		}
		if v, ok := args["recall_time"].(float64); ok {
			recall["recall_time"] = int(v)
		}
		if v := stringArg(args, "encounter_id"); v != "" {
			recall["encounter_id"] = numericID(v)
		}
		if v, ok := args["send_email_reminder"].(bool); ok {
			recall["send_email_reminder"] = v
		}
		if v, ok := args["email_reminder_before"].(float64); ok {
			recall["email_reminder_before"] = strconv.Itoa(int(v))
		}
		if v, ok := args["send_text_reminder"].(bool); ok {
			recall["send_text_reminder"] = v
		}
		if v, ok := args["text_reminder_before"].(float64); ok {
			recall["text_reminder_before"] = strconv.Itoa(int(v))
		}
		resp, err := s.client.Post(ctx, "/patients/"+patientID+"/recalls", []interface{}{recall})
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
		for _, field := range []string{"recall_type", "notes", "recall_date"} {
			if v := stringArg(args, field); v != "" {
				update[field] = v
			}
		}
		if v, ok := args["send_email_reminder"].(bool); ok {
			update["send_email_reminder"] = v
		}
		if v, ok := args["send_text_reminder"].(bool); ok {
			update["send_text_reminder"] = v
		}
		resp, err := s.client.Put(ctx, "/patients/"+patientID+"/recalls/"+recordID, update)
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(resp.Body)), nil

	case "delete":
		recordID, rerr := requireString(args, "record_id")
		if rerr != nil {
			return mcp.NewToolResultError("record_id is required for deletion; use action='list' to find it"), nil
		}
		resp, err := s.client.Delete(ctx, "/patients/"+patientID+"/recalls/"+recordID)
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(resp.Body)), nil

	default:
		return mcp.NewToolResultError("unknown action: " + action), nil
	}
}

func (s *Server) handleManageFiles(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
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
	case "delete_photo":
		resp, err := s.client.Delete(ctx, "/patients/"+patientID+"/photo")
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(resp.Body)), nil

	case "send_phr_invite":
		email, rerr := requireString(args, "email")
		if rerr != nil {
			return mcp.NewToolResultError("email is required to send a PHR invitation"), nil
		}
		invite := map[string]string{"email": email}
		if v := stringArg(args, "rep_first_name"); v != "" {
			invite["rep_first_name"] = v
		}
		if v := stringArg(args, "rep_last_name"); v != "" {
			invite["rep_last_name"] = v
		}
		resp, err := s.client.Post(ctx, "/patients/"+patientID+"/invitations", invite)
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(resp.Body)), nil

	default:
		return mcp.NewToolResultError("unknown action: " + action), nil
	}
}

func (s *Server) handleManageLabs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	action, err := requireString(args, "action")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	switch action {
	case "list":
		query := url.Values{}
		for _, key := range []string{"reviewer_id", "patient_id", "sort_by"} {
			if v := stringArg(args, key); v != "" {
				query.Set(key, v)
			}
		}
		for _, key := range []string{"status", "start_index", "no_of_records"} {
			if v, ok := args[key].(float64); ok {
				query.Set(key, strconv.Itoa(int(v)))
			}
		}
		if v, ok := args["is_ascending"].(bool); ok {
			query.Set("is_ascending", strconv.FormatBool(v))
		}
		resp, err := s.client.Get(ctx, "/labs/results", query)
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(resp.Body)), nil

	case "get_details":
		groupID := stringArg(args, "group_id")
		orderID := stringArg(args, "lab_order_id")
		if groupID == "" && orderID == "" {
			return mcp.NewToolResultError("provide group_id for result groups or lab_order_id for specific orders; use action='list' to find them"), nil
		}
		path := "/labs/order/results/" + orderID
		if groupID != "" {
			path = "/labs/results/" + groupID
		}
		resp, err := s.client.Get(ctx, path, nil)
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(resp.Body)), nil

	case "add_result":
		patientID, rerr := requireString(args, "patient_id")
		details, ok := args["result_details"].(map[string]interface{})
		if rerr != nil || !ok {
			return mcp.NewToolResultError("add_result requires patient_id and a structured result_details object"), nil
		}
		payload := map[string]interface{}{
			"patient_id":     patientID,
			"result_details": details,
		}
		resp, err := s.client.Post(ctx, "/labs/results/upload", payload)
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(resp.Body)), nil

	default:
		return mcp.NewToolResultError("unknown action: " + action), nil
	}
}
