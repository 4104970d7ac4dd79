package server

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPracticeTools() {
	findPatientsTool := mcp.NewTool("find_patients",
		mcp.WithDescription("Find patients using a search term and strategy. Returns patient_id values needed by every other patient tool."),
		mcp.WithString("query",
			mcp.Description("Search term: a name, phone number, email, or medical record ID depending on search_type"),
		),
		mcp.WithString("search_type",
			mcp.Description("Search strategy: name, phone, email, record_id, demographics, or advanced"),
			mcp.Enum("name", "phone", "email", "record_id", "demographics", "advanced"),
		),
		mcp.WithString("facility_id",
			mcp.Description("Restrict the search to one facility (default ALL)"),
		),
		mcp.WithString("status",
			mcp.Description("Patient status filter: active, inactive, or all (default active)"),
			mcp.Enum("active", "inactive", "all"),
		),
		mcp.WithString("gender", mcp.Description("Filter by gender")),
		mcp.WithNumber("age_min", mcp.Description("Minimum age for demographic searches")),
		mcp.WithNumber("age_max", mcp.Description("Maximum age for demographic searches")),
		mcp.WithString("blood_group", mcp.Description("Filter by blood group, e.g. O+")),
		mcp.WithString("language", mcp.Description("Filter by preferred language")),
		mcp.WithString("marital_status", mcp.Description("Filter by marital status")),
		mcp.WithString("state", mcp.Description("Filter by state")),
		mcp.WithString("city", mcp.Description("Filter by city")),
		mcp.WithString("country", mcp.Description("Filter by country")),
		mcp.WithString("postal_code", mcp.Description("Filter by postal code")),
		mcp.WithBoolean("has_phr_account", mcp.Description("Filter by PHR portal enrollment")),
		mcp.WithString("sort_by",
			mcp.Description("Sort column: name, created_date, or modified_date"),
			mcp.Enum("name", "created_date", "modified_date"),
		),
		mcp.WithString("sort_order",
			mcp.Description("Sort direction: asc or desc"),
			mcp.Enum("asc", "desc"),
		),
		mcp.WithNumber("limit", mcp.Description("Maximum results per page (default 10)")),
		mcp.WithNumber("page", mcp.Description("Result page number (default 1)")),
	)
	s.addTool(findPatientsTool, s.handleFindPatients)

	practiceInfoTool := mcp.NewTool("get_practice_info",
		mcp.WithDescription("Get practice setup information: facilities, providers, vital sign templates, or a combined overview. IDs returned here are needed for scheduling and encounters."),
		mcp.WithString("info_type",
			mcp.Description("What to fetch: facilities, providers, vitals, or overview (default overview)"),
			mcp.Enum("facilities", "providers", "vitals", "overview"),
		),
	)
	s.addTool(practiceInfoTool, s.handleGetPracticeInfo)
}

// handleFindPatients translates a search strategy into /patients filters.
func (s *Server) handleFindPatients(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)

	facilityID := stringArg(args, "facility_id")
	if facilityID == "" {
		facilityID = "ALL"
	}
	query := url.Values{}
	query.Set("facility_id", facilityID)

	limit := "10"
	if v, ok := args["limit"]; ok {
		limit = argValue(v)
	}
	query.Set("per_page", limit)
	page := "1"
	if v, ok := args["page"]; ok {
		page = argValue(v)
	}
	query.Set("page", page)

	switch stringArg(args, "sort_by") {
	case "created_date":
		query.Set("sort_column", "created_date")
	case "modified_date":
		query.Set("sort_column", "modified_date")
	default:
		query.Set("sort_column", "full_name")
	}
	if stringArg(args, "sort_order") == "desc" {
		query.Set("sort_order", "D")
	} else {
		query.Set("sort_order", "A")
	}

	switch stringArg(args, "status") {
	case "inactive":
		query.Set("filter_by", "Status.Locked")
	case "all":
		// no status filter
	default:
		query.Set("filter_by", "Status.Active")
	}

	term := stringArg(args, "query")
	switch stringArg(args, "search_type") {
	case "phone":
		if term != "" {
			clean := strings.NewReplacer("-", "", "(", "", ")", "", " ", "").Replace(term)
			query.Set("mobile_contains", clean)
		}
	case "email":
		if term != "" {
			query.Set("email_contains", term)
		}
	case "record_id":
		if term != "" {
			query.Set("record_id_contains", term)
		}
	case "name", "demographics", "advanced", "":
		if term != "" {
			if strings.Contains(term, " ") {
				query.Set("full_name_contains", term)
			} else {
				query.Set("first_name_contains", term)
			}
		}
	}

	for arg, param := range map[string]string{
		"gender":          "gender",
		"blood_group":     "blood_group",
		"language":        "language",
		"marital_status":  "marital_status",
		"state":           "state",
		"city":            "city",
		"country":         "country",
		"postal_code":     "postal_code",
		"age_min":         "age_greater_equals",
		"age_max":         "age_lesser_equals",
		"has_phr_account": "is_phr_account_available",
	} {
		if v, ok := args[arg]; ok && v != nil {
			query.Set(param, argValue(v))
		}
	}

	resp, err := s.client.Get(ctx, "/patients", query)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(resp.Body)), nil
}

// handleGetPracticeInfo aggregates facility, provider, and vitals metadata.
func (s *Server) handleGetPracticeInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	infoType := stringArg(args, "info_type")
	if infoType == "" {
		infoType = "overview"
	}

	result := map[string]interface{}{"practice_info_type": infoType}

	fetch := func(path string, query url.Values, listKey, resultKey string) (int, error) {
		resp, err := s.client.Get(ctx, path, query)
		if err != nil {
			return 0, err
		}
		var body map[string]json.RawMessage
		if err := resp.Decode(&body); err != nil {
			return 0, err
		}
		items := body[listKey]
		if items == nil {
			items = json.RawMessage("[]")
		}
		result[resultKey] = items
		var count []json.RawMessage
		_ = json.Unmarshal(items, &count)
		return len(count), nil
	}

	providerQuery := url.Values{"privilege": {"sign_encounter"}}

	switch infoType {
	case "facilities":
		if _, err := fetch("/facilities", nil, "facilities", "facilities"); err != nil {
			return nil, err
		}
	case "providers":
		if _, err := fetch("/members", providerQuery, "members", "providers"); err != nil {
			return nil, err
		}
	case "vitals":
		if _, err := fetch("/vitals/metrics", nil, "vitals", "available_vitals"); err != nil {
			return nil, err
		}
	case "overview":
		n, err := fetch("/facilities", nil, "facilities", "facilities")
		if err != nil {
			return nil, err
		}
		result["facility_count"] = n
		n, err = fetch("/members", providerQuery, "members", "providers")
		if err != nil {
			return nil, err
		}
		result["provider_count"] = n
		n, err = fetch("/vitals/metrics", nil, "vitals", "available_vitals")
		if err != nil {
			return nil, err
		}
		result["vital_types_count"] = n
	default:
		return mcp.NewToolResultError("unknown info_type: " + infoType), nil
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(payload)), nil
}
