package services

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/coldpath/coldpath-backend/models"
)

// ImportLeadsCSV parses a lead CSV (header row required; recognised columns:
// name, title, company, linkedin_url, email) and inserts the rows for the
// organization. Rows with neither an email nor a LinkedIn URL are skipped;
// there is nothing to contact and nothing to enrich.
func ImportLeadsCSV(orgID uint, campaignID, contactListID *uint, r io.Reader) ([]models.Lead, int, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("csv header: %w", err)
	}
	col := map[string]int{}
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}

	field := func(row []string, name string) string {
		idx, ok := col[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	var leads []models.Lead
	skipped := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			skipped++
			continue
		}

		email := strings.ToLower(field(row, "email"))
		linkedIn := field(row, "linkedin_url")
		if email == "" && linkedIn == "" {
			skipped++
			continue
		}

		lead := models.Lead{
			PublicID:      uuid.NewString(),
			OrgID:         orgID,
			CampaignID:    campaignID,
			ContactListID: contactListID,
			Name:          field(row, "name"),
			Title:         field(row, "title"),
			Company:       field(row, "company"),
			LinkedInURL:   linkedIn,
			Email:         email,
			Source:        "csv",
		}
		if email != "" {
			lead.EmailStatus = "unverified"
		}
		leads = append(leads, lead)
	}

	if len(leads) == 0 {
		return nil, skipped, nil
	}
	if err := DB.CreateInBatches(&leads, 200).Error; err != nil {
		return nil, skipped, fmt.Errorf("csv insert: %w", err)
	}
	return leads, skipped, nil
}
