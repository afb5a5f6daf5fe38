package entity

// TrainingParams are the detector configuration values derived from the
// class count.
type TrainingParams struct {
	Classes    int
	Filters    int
	MaxBatches int
	Step1      int
	Step2      int
}

// ConfigArtifacts lists what a config write actually produced. ConfigPath is
// empty when no template was available.
type ConfigArtifacts struct {
	NamesPath  string
	ConfigPath string
	Params     TrainingParams
}

func (a *ConfigArtifacts) FullConfig() bool {
	return a.ConfigPath != ""
}
