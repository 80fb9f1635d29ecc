package models

// Entity types synchronized by default. Each entity type is its own sync category.
const (
	EntityHandHistory      = "handHistory"
	EntityPlayerStats      = "playerStats"
	EntityTrainingScenario = "trainingScenarios"
	EntityProgress         = "progress"
)

// DefaultCategories returns the default set of synchronized entity categories,
// in the order a batch run visits them.
func DefaultCategories() []string {
	return []string{
		EntityHandHistory,
		EntityPlayerStats,
		EntityTrainingScenario,
		EntityProgress,
	}
}
