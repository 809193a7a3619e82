package main

import "github.com/AutoSenseAI/autosense/engine/domain"

// sampleDTCs covers the most common powertrain codes so a fresh install
// has something to diagnose against before a real CSV is loaded.
func sampleDTCs() []domain.DiagnosticDocument {
	rows := []struct{ code, category, desc string }{
		{"P0420", "Engine", "Catalyst System Efficiency Below Threshold (Bank 1)"},
		{"P0300", "Engine", "Random/Multiple Cylinder Misfire Detected"},
		{"P0171", "Fuel System", "System Too Lean (Bank 1)"},
		{"P0174", "Fuel System", "System Too Lean (Bank 2)"},
		{"P0128", "Cooling System", "Coolant Thermostat (Coolant Temperature Below Thermostat Regulating Temperature)"},
		{"P0442", "Evaporative System", "Evaporative Emission Control System Leak Detected (Small Leak)"},
		{"P0455", "Evaporative System", "Evaporative Emission Control System Leak Detected (Gross Leak)"},
		{"P0506", "Idle Control", "Idle Air Control System RPM Lower Than Expected"},
		{"P0507", "Idle Control", "Idle Air Control System RPM Higher Than Expected"},
		{"P0700", "Transmission", "Transmission Control System Malfunction"},
	}

	docs := make([]domain.DiagnosticDocument, 0, len(rows))
	for _, r := range rows {
		docs = append(docs, domain.DiagnosticDocument{
			Type:        domain.DocTypeDTC,
			Code:        r.code,
			Category:    r.category,
			Description: r.desc,
		})
	}
	return docs
}

// sampleVINs drive the recall fetch when no -vins flag is given.
var sampleVINs = []string{
	"1HGBH41JXMN109186",
	"2HGFC2F59JH000001",
	"3VWDX7AJ5DM123456",
}

// sampleRecalls stand in when the NHTSA API is unreachable.
func sampleRecalls() []domain.DiagnosticDocument {
	return []domain.DiagnosticDocument{
		{
			Type:     domain.DocTypeRecall,
			RecallID: "23V123456",
			VIN:      "1HGBH41JXMN109186",
			Date:     "2023-03-15",
			Summary:  "Fuel pump may fail causing engine stall while driving, increasing the risk of a crash.",
		},
		{
			Type:     domain.DocTypeRecall,
			RecallID: "23V789012",
			VIN:      "2HGFC2F59JH000001",
			Date:     "2023-06-22",
			Summary:  "Software error in the electronic brake booster may reduce braking assistance.",
		},
		{
			Type:     domain.DocTypeRecall,
			RecallID: "23V345678",
			VIN:      "3VWDX7AJ5DM123456",
			Date:     "2023-09-08",
			Summary:  "Rearview camera image may not display, reducing the driver's rear view.",
		},
	}
}
