package featureflag

type Flag string

const (
	FlagDisableSimplify      Flag = "DISABLE_SIMPLIFY"
	FlagDisableAdaptiveUnion Flag = "DISABLE_ADAPTIVE_UNION"
	FlagDisableDebris        Flag = "DISABLE_DEBRIS"
	FlagDisableValidation    Flag = "DISABLE_VALIDATION"
	FlagDisableChunkGraph    Flag = "DISABLE_CHUNK_GRAPH"
	FlagDisableImpacts       Flag = "DISABLE_IMPACTS"
)

var knownFlags = map[Flag]struct{}{
	FlagDisableSimplify:      {},
	FlagDisableAdaptiveUnion: {},
	FlagDisableDebris:        {},
	FlagDisableValidation:    {},
	FlagDisableChunkGraph:    {},
	FlagDisableImpacts:       {},
}
