package resource

import "github.com/kasuganosora/solotracker/model"

func defaultCategories() []*Category {
	return []*Category{
		{Code: "fitness", Name: "Fitness", Icon: "dumbbell", Color: "red"},
		{Code: "learning", Name: "Learning", Icon: "book", Color: "blue"},
		{Code: "mindfulness", Name: "Mindfulness", Icon: "brain", Color: "purple"},
		{Code: "productivity", Name: "Productivity", Icon: "target", Color: "green"},
	}
}

func defaultQuests() []*QuestDef {
	return []*QuestDef{
		{Title: "100 Push-ups", Category: "fitness", Difficulty: model.DifficultyMedium, XPReward: 100,
			Description: "Complete 100 push-ups, in as many sets as you need."},
		{Title: "Run 5 Kilometers", Category: "fitness", Difficulty: model.DifficultyHard, XPReward: 200,
			Description: "Run or jog 5 km without stopping for long."},
		{Title: "Read for 30 Minutes", Category: "learning", Difficulty: model.DifficultyEasy, XPReward: 50,
			Description: "Read a book, paper or long-form article."},
		{Title: "Meditate for 10 Minutes", Category: "mindfulness", Difficulty: model.DifficultyEasy, XPReward: 50,
			Description: "Sit quietly and focus on your breathing."},
		{Title: "Deep Work Session", Category: "productivity", Difficulty: model.DifficultyMedium, XPReward: 100,
			Description: "Spend 90 focused minutes on your most important task."},
		{Title: "Learn Something New", Category: "learning", Difficulty: model.DifficultyMedium, XPReward: 100,
			Description: "Finish a lesson, tutorial or course module."},
	}
}

func defaultAchievements() []*AchievementDef {
	return []*AchievementDef{
		{Name: "First Steps", Description: "Complete your first quest.", Icon: "footprints",
			RequirementType: model.RequirementQuestsCompleted, RequirementValue: 1, XPReward: 50},
		{Name: "Quest Hunter", Description: "Complete 10 quests.", Icon: "sword",
			RequirementType: model.RequirementQuestsCompleted, RequirementValue: 10, XPReward: 200},
		{Name: "Raid Veteran", Description: "Complete 50 quests.", Icon: "shield",
			RequirementType: model.RequirementQuestsCompleted, RequirementValue: 50, XPReward: 1000},
		{Name: "Awakening", Description: "Reach level 5.", Icon: "star",
			RequirementType: model.RequirementLevel, RequirementValue: 5, XPReward: 100},
		{Name: "C-Rank", Description: "Reach level 10.", Icon: "medal",
			RequirementType: model.RequirementLevel, RequirementValue: 10, XPReward: 500},
		{Name: "On a Roll", Description: "Keep a 3 day streak.", Icon: "flame",
			RequirementType: model.RequirementStreak, RequirementValue: 3, XPReward: 100},
		{Name: "Unstoppable", Description: "Keep a 7 day streak.", Icon: "zap",
			RequirementType: model.RequirementStreak, RequirementValue: 7, XPReward: 300},
	}
}
