package hubspot

import "strings"

// ContactProperties is the property bag sent on contact create/update.
type ContactProperties struct {
	Email     string `json:"email"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// SplitName maps a single form name field onto HubSpot's firstname/lastname.
func SplitName(fullName string) (string, string) {
	parts := strings.Fields(strings.TrimSpace(fullName))
	if len(parts) == 0 {
		return fullName, ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

type searchRequest struct {
	FilterGroups []filterGroup `json:"filterGroups"`
	Properties   []string      `json:"properties"`
	Limit        int           `json:"limit"`
}

type filterGroup struct {
	Filters []filter `json:"filters"`
}

type filter struct {
	PropertyName string `json:"propertyName"`
	Operator     string `json:"operator"`
	Value        string `json:"value"`
}

func buildSearchRequest(email string) searchRequest {
	return searchRequest{
		FilterGroups: []filterGroup{
			{Filters: []filter{{PropertyName: "email", Operator: "EQ", Value: email}}},
		},
		Properties: []string{"email"},
		Limit:      1,
	}
}

type contactResponse struct {
	ID string `json:"id"`
}
