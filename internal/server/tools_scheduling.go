package server

import (
	"context"
	"net/url"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerSchedulingTools() {
	tool := mcp.NewTool("manage_appointments",
		mcp.WithDescription("Appointment lifecycle: schedule a new appointment, reschedule or cancel an existing one, or list appointments in a date range."),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Description("Operation: schedule, reschedule, cancel, or list"),
			mcp.Enum("schedule", "reschedule", "cancel", "list"),
		),
		mcp.WithString("patient_id", mcp.Description("Patient ID (required for schedule and reschedule)")),
		mcp.WithString("appointment_id", mcp.Description("Appointment ID (required for reschedule and cancel)")),
		mcp.WithString("provider_id", mcp.Description("Provider (member) ID from get_practice_info")),
		mcp.WithString("facility_id", mcp.Description("Facility ID from get_practice_info")),
		mcp.WithString("appointment_date", mcp.Description("Appointment date, yyyy-mm-dd")),
		mcp.WithString("appointment_time", mcp.Description(`Start time in 12-hour format, e.g. "09:30 AM"`)),
		mcp.WithNumber("duration_minutes", mcp.Description("Duration in minutes (default 30)")),
		mcp.WithString("mode",
			mcp.Description("Visit mode (default In Person)"),
			mcp.Enum("In Person", "Phone call", "Video Consult"),
		),
		mcp.WithString("reason", mcp.Description("Reason for the visit")),
		mcp.WithString("status",
			mcp.Description("Appointment status (default Confirmed)"),
			mcp.Enum("Confirmed", "Pending", "Tentative", "Cancelled"),
		),
		mcp.WithNumber("visit_type_id", mcp.Description("Visit type ID")),
		mcp.WithString("repetition", mcp.Description(`Repetition (default "Single Date"); set "Weekly" or "Daily" with frequency and end_date for recurring series`)),
		mcp.WithString("frequency", mcp.Description("Recurrence frequency: daily or weekly")),
		mcp.WithString("end_date", mcp.Description("Recurrence end date, yyyy-mm-dd")),
		mcp.WithArray("weekly_days", mcp.Description("Weekday selection for weekly recurrence")),
		mcp.WithString("message_to_patient", mcp.Description("Message included in the patient notification")),
		mcp.WithNumber("resource_id", mcp.Description("Bookable resource ID")),
		mcp.WithString("provider_double_booking", mcp.Description(`Pass "allow" to override the provider double-booking check`)),
		mcp.WithString("resource_double_booking", mcp.Description(`Pass "allow" to override the resource double-booking check`)),
		mcp.WithString("cancel_reason", mcp.Description("Cancellation reason (required for cancel)")),
		mcp.WithString("delete_type", mcp.Description("Cancel scope for recurring series: Current or Entire")),
		mcp.WithString("start_date", mcp.Description("List range start, yyyy-mm-dd (required for list)")),
		mcp.WithString("end_date_range", mcp.Description("List range end, yyyy-mm-dd (required for list)")),
		mcp.WithString("facility_ids", mcp.Description("Comma-separated facility IDs (required for list)")),
		mcp.WithString("member_ids", mcp.Description("Comma-separated provider IDs for list filtering")),
		mcp.WithString("status_ids", mcp.Description("Comma-separated status IDs for list filtering")),
	)
	s.addTool(tool, s.handleManageAppointments)
}

// appointmentPayload builds the appointment object shared by schedule and
// reschedule.
func appointmentPayload(args map[string]interface{}) map[string]interface{} {
	payload := map[string]interface{}{
		"mode":       "In Person",
		"repetition": "Single Date",
	}
	if v := stringArg(args, "mode"); v != "" {
		payload["mode"] = v
	}
	if v := stringArg(args, "repetition"); v != "" {
		payload["repetition"] = v
	}

	status := stringArg(args, "status")
	if status == "" {
		status = "Confirmed"
	}
	payload["appointment_status"] = status

	payload["start_date"] = stringArg(args, "appointment_date")
	payload["start_time"] = stringArg(args, "appointment_time")

	duration := 30
	if v, ok := args["duration_minutes"].(float64); ok {
		duration = int(v)
	}
	payload["duration_in_minutes"] = duration

	for _, key := range []string{
		"reason", "visit_type_id", "end_date", "frequency", "weekly_days",
		"message_to_patient", "questionnaire", "consent_forms", "resource_id",
		"provider_double_booking", "resource_double_booking", "receipt_id",
	} {
		if v, ok := args[key]; ok && v != nil {
			payload[key] = v
		}
	}
	return payload
}

// numericID converts a string ID argument into the numeric form the
// appointment endpoints expect; non-numeric IDs pass through unchanged.
func numericID(id string) interface{} {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}

func (s *Server) handleManageAppointments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	action, err := requireString(args, "action")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	switch action {
	case "schedule":
		for _, field := range []string{"patient_id", "provider_id", "facility_id", "appointment_date", "appointment_time"} {
			if _, err := requireString(args, field); err != nil {
				return mcp.NewToolResultError("missing required fields for scheduling: provide patient_id, provider_id, facility_id, appointment_date, and appointment_time"), nil
			}
		}
		payload := appointmentPayload(args)
		payload["patient_id"] = numericID(stringArg(args, "patient_id"))
		payload["facility_id"] = numericID(stringArg(args, "facility_id"))
		payload["member_id"] = numericID(stringArg(args, "provider_id"))

		resp, err := s.client.Post(ctx, "/appointments", payload)
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(resp.Body)), nil

	case "reschedule":
		for _, field := range []string{"appointment_id", "facility_id", "patient_id", "provider_id", "appointment_date", "appointment_time"} {
			if _, err := requireString(args, field); err != nil {
				return mcp.NewToolResultError("missing required fields for rescheduling: provide appointment_id, facility_id, patient_id, provider_id, appointment_date, and appointment_time"), nil
			}
		}
		payload := appointmentPayload(args)
		payload["patient_id"] = stringArg(args, "patient_id")
		payload["facility_id"] = stringArg(args, "facility_id")
		payload["member_id"] = stringArg(args, "provider_id")

		appointmentID := stringArg(args, "appointment_id")
		resp, err := s.client.Post(ctx, "/appointment/"+appointmentID+"/reschedule", map[string]interface{}{"data": payload})
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(resp.Body)), nil

	case "cancel":
		appointmentID, err := requireString(args, "appointment_id")
		if err != nil {
			return mcp.NewToolResultError("appointment_id and cancel_reason are required for cancellation"), nil
		}
		cancelReason, err := requireString(args, "cancel_reason")
		if err != nil {
			return mcp.NewToolResultError("appointment_id and cancel_reason are required for cancellation"), nil
		}
		payload := map[string]interface{}{"reason": cancelReason}
		if v := stringArg(args, "delete_type"); v != "" {
			payload["delete_type"] = v
		}
		resp, err := s.client.Post(ctx, "/appointments/"+appointmentID+"/cancel", payload)
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(resp.Body)), nil

	case "list":
		for _, field := range []string{"start_date", "end_date_range", "facility_ids"} {
			if _, err := requireString(args, field); err != nil {
				return mcp.NewToolResultError("missing required fields for listing: provide start_date, end_date_range, and facility_ids"), nil
			}
		}
		query := url.Values{}
		query.Set("start_date", stringArg(args, "start_date"))
		query.Set("end_date", stringArg(args, "end_date_range"))
		query.Set("facility_ids", stringArg(args, "facility_ids"))
		for _, key := range []string{"patient_id", "member_ids", "status_ids"} {
			if v := stringArg(args, key); v != "" {
				query.Set(key, v)
			}
		}
		resp, err := s.client.Get(ctx, "/appointments", query)
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(resp.Body)), nil

	default:
		return mcp.NewToolResultError("unknown action: " + action), nil
	}
}
