package h1b

func wage(v float64) *float64 { return &v }

func fixtureRecords() []Record {
	return []Record{
		{ID: 1, CaseNumber: "I-200-001", CaseStatus: "CERTIFIED", EmployerName: "Google LLC", JobTitle: "Software Engineer", WageRateOfPayFrom: wage(150000)},
		{ID: 2, CaseNumber: "I-200-002", CaseStatus: "DENIED", EmployerName: "Acme Corp", JobTitle: "Data Analyst", WageRateOfPayFrom: wage(70000), WageRateOfPayTo: wage(90000)},
		{ID: 3, CaseNumber: "I-200-003", CaseStatus: "CERTIFIED-WITHDRAWN", EmployerName: "Microsoft Corporation", JobTitle: "Senior Software Engineer", WageRateOfPayFrom: wage(180000)},
		{ID: 4, CaseNumber: "I-200-004", CaseStatus: "WITHDRAWN", EmployerName: "google cloud", JobTitle: "Product Manager"},
		{ID: 5, CaseNumber: "I-300-GOO", CaseStatus: "CERTIFIED", EmployerName: "Amazon.com Services", JobTitle: "SDE II", WageRateOfPayFrom: wage(100000)},
	}
}
