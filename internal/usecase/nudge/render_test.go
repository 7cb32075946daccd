package nudge

import (
	"strings"
	"testing"
	"time"

	"coach-nudge-bot/internal/domain"
)

func TestTemplateForPrefersConfigured(t *testing.T) {
	configured := []domain.Block{{Type: "section", Text: &domain.TextObject{Type: "mrkdwn", Text: "свой текст"}}}
	templates := map[domain.NudgeCategory][]domain.Block{
		domain.CategoryDailyDigest: configured,
	}
	got := TemplateFor(templates, domain.CategoryDailyDigest)
	if len(got) != 1 || got[0].Text.Text != "свой текст" {
		t.Fatalf("ожидали сконфигурированный шаблон, получили %+v", got)
	}
}

func TestTemplateForFallsBack(t *testing.T) {
	for _, category := range domain.AllCategories {
		got := TemplateFor(nil, category)
		if len(got) == 0 {
			t.Errorf("категория %s осталась без шаблона по умолчанию", category)
		}
	}
}

func TestFallbackSubstitution(t *testing.T) {
	blocks := domain.SubstitutePlaceholders(TemplateFor(nil, domain.CategoryDailyDigest), map[string]string{"task_count": "3"})
	found := false
	for _, block := range blocks {
		if block.Text != nil && strings.Contains(block.Text.Text, "*3*") {
			found = true
		}
	}
	if !found {
		t.Fatalf("ожидали подставленный счётчик задач в блоках: %+v", blocks)
	}
}

func TestBuildTaskBlocks(t *testing.T) {
	now := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	tasks := []domain.Task{
		{ID: 10, RecipientID: "u", Title: "Первая", Status: domain.TaskOpen, CreatedAt: now},
		{ID: 11, RecipientID: "u", Title: "Вторая", Status: domain.TaskOpen, CreatedAt: now},
	}
	blocks := BuildTaskBlocks(tasks, 2, 5)

	if len(blocks) != 4 {
		t.Fatalf("ожидали divider, 2 задачи и счётчик, получили %d блоков", len(blocks))
	}
	if blocks[0].Type != "divider" {
		t.Fatalf("первый блок должен быть divider, получили %s", blocks[0].Type)
	}
	for i, task := range tasks {
		block := blocks[i+1]
		if block.BlockID != "task_"+block.Accessory.Value {
			t.Errorf("block_id и значение кнопки разъехались: %s против %s", block.BlockID, block.Accessory.Value)
		}
		if block.Accessory.ActionID != domain.ActionCompleteTask {
			t.Errorf("кнопка задачи должна нести action %s", domain.ActionCompleteTask)
		}
		if !strings.Contains(block.Text.Text, task.Title) {
			t.Errorf("блок задачи не содержит заголовок %q", task.Title)
		}
	}
	counter := blocks[len(blocks)-1]
	if counter.Type != "context" || !strings.Contains(counter.Elements[0].Text.Text, "Выполнено 5 · Осталось 2") {
		t.Fatalf("счётчик выполненного собран неверно: %+v", counter)
	}
}
