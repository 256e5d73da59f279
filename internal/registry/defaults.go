// internal/registry/defaults.go
//
// Production registry tables.
//
// Column names follow the `university` schema; staged fields carry a
// `<column>_draft` twin.  roi and the research fields are written by
// external sync jobs only, so no block type lists them.
package registry

// Hard block type keys.
const (
	BlockAdmissions = "admissions_stats"
	BlockCost       = "cost_breakdown"
	BlockLocation   = "campus_location"
	BlockOutcomes   = "student_outcomes"
)

// Field names.
const (
	FieldName      Field = "name"
	FieldShortName Field = "shortName"
	FieldWebsite   Field = "website"

	FieldAcceptanceRate  Field = "acceptanceRate"
	FieldAvgSatScore     Field = "avgSatScore"
	FieldAvgActScore     Field = "avgActScore"
	FieldGPA25           Field = "gpa25"
	FieldGPA75           Field = "gpa75"
	FieldSatPercentile25 Field = "satPercentile25"
	FieldSatPercentile75 Field = "satPercentile75"

	FieldTuitionInState       Field = "tuitionInState"
	FieldTuitionOutState      Field = "tuitionOutState"
	FieldTuitionInternational Field = "tuitionInternational"
	FieldRoomAndBoard         Field = "roomAndBoard"
	FieldCostOfLiving         Field = "costOfLiving"

	FieldLatitude       Field = "latitude"
	FieldLongitude      Field = "longitude"
	FieldClimateZone    Field = "climateZone"
	FieldNearestAirport Field = "nearestAirport"
	FieldRegion         Field = "region"

	FieldGraduationRate    Field = "graduationRate"
	FieldRetentionRate     Field = "retentionRate"
	FieldEmploymentRate    Field = "employmentRate"
	FieldAvgStartingSalary Field = "avgStartingSalary"
	FieldROI               Field = "roi"

	FieldResearchExpenditure Field = "researchExpenditure"
	FieldResearchRank        Field = "researchRank"
)

func live(name Field, col string, tag Tag, kind Kind) FieldSpec {
	return FieldSpec{Name: name, Column: col, Tag: tag, Kind: kind}
}

func staged(name Field, col string, tag Tag, kind Kind) FieldSpec {
	return FieldSpec{Name: name, Column: col, DraftColumn: col + "_draft", Tag: tag, Kind: kind, Staged: true}
}

// DefaultDefinition returns the production tables.
func DefaultDefinition() Definition {
	return Definition{
		Fields: []FieldSpec{
			live(FieldName, "name", TagIdentity, KindString),
			live(FieldShortName, "short_name", TagIdentity, KindString),
			live(FieldWebsite, "website", TagIdentity, KindString),

			staged(FieldAcceptanceRate, "acceptance_rate", TagAdmissions, KindFloat),
			staged(FieldAvgSatScore, "avg_sat_score", TagAdmissions, KindInt),
			staged(FieldAvgActScore, "avg_act_score", TagAdmissions, KindInt),
			live(FieldGPA25, "gpa_25", TagAdmissions, KindFloat),
			live(FieldGPA75, "gpa_75", TagAdmissions, KindFloat),
			live(FieldSatPercentile25, "sat_percentile_25", TagAdmissions, KindInt),
			live(FieldSatPercentile75, "sat_percentile_75", TagAdmissions, KindInt),

			staged(FieldTuitionInState, "tuition_in_state", TagCost, KindInt),
			staged(FieldTuitionOutState, "tuition_out_state", TagCost, KindInt),
			staged(FieldTuitionInternational, "tuition_international", TagCost, KindInt),
			live(FieldRoomAndBoard, "room_and_board", TagCost, KindInt),
			staged(FieldCostOfLiving, "cost_of_living", TagCost, KindInt),

			live(FieldLatitude, "latitude", TagLocation, KindFloat),
			live(FieldLongitude, "longitude", TagLocation, KindFloat),
			live(FieldClimateZone, "climate_zone", TagLocation, KindString),
			live(FieldNearestAirport, "nearest_airport", TagLocation, KindString),
			live(FieldRegion, "region", TagLocation, KindString),

			staged(FieldGraduationRate, "graduation_rate", TagOutcomes, KindFloat),
			live(FieldRetentionRate, "retention_rate", TagOutcomes, KindFloat),
			staged(FieldEmploymentRate, "employment_rate", TagOutcomes, KindFloat),
			staged(FieldAvgStartingSalary, "avg_starting_salary", TagOutcomes, KindInt),
			live(FieldROI, "roi", TagOutcomes, KindFloat),

			live(FieldResearchExpenditure, "research_expenditure", TagResearch, KindInt),
			live(FieldResearchRank, "research_rank", TagResearch, KindInt),
		},
		Blocks: []BlockSpec{
			{
				Type:   BlockAdmissions,
				Domain: DomainAdmissions,
				Fields: []Field{
					FieldAcceptanceRate, FieldAvgSatScore, FieldAvgActScore,
					FieldGPA25, FieldGPA75, FieldSatPercentile25, FieldSatPercentile75,
				},
			},
			{
				Type:   BlockCost,
				Domain: DomainFinancials,
				Fields: []Field{
					FieldTuitionInState, FieldTuitionOutState, FieldTuitionInternational,
					FieldRoomAndBoard, FieldCostOfLiving,
				},
			},
			{
				Type:   BlockLocation,
				Domain: DomainGeography,
				Fields: []Field{
					FieldLatitude, FieldLongitude, FieldClimateZone,
					FieldNearestAirport, FieldRegion,
				},
			},
			{
				Type:   BlockOutcomes,
				Domain: DomainOutcomes,
				Fields: []Field{
					FieldGraduationRate, FieldRetentionRate,
					FieldEmploymentRate, FieldAvgStartingSalary,
				},
			},
		},
	}
}

// Default builds the production Registry.
func Default() (*Registry, error) { return New(DefaultDefinition()) }
