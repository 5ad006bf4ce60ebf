package service

import (
	"strings"
	"time"

	"github.com/noah-isme/clearance-api/internal/models"
)

// OfficePolicy decides which offices sign a request and which of them are pre-approved.
type OfficePolicy interface {
	Offices(program string) []string
	AutoApprovals(program string) []string
}

// DefaultOfficePolicy is the institution's standing office table.
type DefaultOfficePolicy struct{}

var deanByProgram = map[string]string{
	"BEED": models.OfficeDeanCoEd,
	"BSED": models.OfficeDeanCoEd,
	"BSHM": models.OfficeDeanHM,
	"BSCS": models.OfficeDeanCS,
	"ACT":  models.OfficeDeanCS,
}

// DeanOffice maps a program code to its dean office, defaulting to CS.
func DeanOffice(program string) string {
	if office, ok := deanByProgram[strings.ToUpper(strings.TrimSpace(program))]; ok {
		return office
	}
	return models.OfficeDeanCS
}

// Offices returns the signing order for program.
func (DefaultOfficePolicy) Offices(program string) []string {
	return []string{
		models.OfficeComputerLab,
		models.OfficeGuidance,
		models.OfficeStudentAffairs,
		models.OfficeLibrary,
		DeanOffice(program),
		models.OfficeAccounting,
		models.OfficePropertyCustodian,
		models.OfficeRegistrar,
	}
}

// AutoApprovals pre-approves the Computer Laboratory for everyone outside BSCS.
func (DefaultOfficePolicy) AutoApprovals(program string) []string {
	if strings.EqualFold(strings.TrimSpace(program), "BSCS") {
		return nil
	}
	return []string{models.OfficeComputerLab}
}

// BuildSignatories materialises one row per office for a new request.
func BuildSignatories(policy OfficePolicy, requestID, program string, now time.Time) []models.Signatory {
	auto := make(map[string]struct{})
	for _, office := range policy.AutoApprovals(program) {
		auto[office] = struct{}{}
	}
	offices := policy.Offices(program)
	rows := make([]models.Signatory, 0, len(offices))
	for _, office := range offices {
		row := models.Signatory{
			RequestID: requestID,
			Office:    office,
			Status:    models.SignatoryPending,
			CreatedAt: now,
		}
		if _, ok := auto[office]; ok {
			actor := models.SystemActor
			signedAt := now
			row.Status = models.SignatoryApproved
			row.SignedBy = &actor
			row.SignedAt = &signedAt
		}
		rows = append(rows, row)
	}
	return rows
}
