package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.SeedRolesActivity)
	w.RegisterActivity(a.ImportTaxonomyActivity)
	w.RegisterActivity(a.ImportCaseBatchActivity)
	w.RegisterActivity(a.WriteImportSummaryActivity)
}
