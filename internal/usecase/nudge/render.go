package nudge

import (
	"fmt"
	"strconv"

	"coach-nudge-bot/internal/domain"
)

// TemplateFor возвращает сконфигурированный скелет сообщения категории или
// захардкоженный вариант по умолчанию, если шаблон не настроен.
func TemplateFor(templates map[domain.NudgeCategory][]domain.Block, category domain.NudgeCategory) []domain.Block {
	if blocks, ok := templates[category]; ok && len(blocks) > 0 {
		return blocks
	}
	return fallbackBlocks(category)
}

func fallbackBlocks(category domain.NudgeCategory) []domain.Block {
	switch category {
	case domain.CategoryDailyDigest:
		return []domain.Block{
			header("Задачи на сегодня"),
			section("Открытых задач: *{{task_count}}*. Отмечайте выполненные прямо здесь."),
		}
	case domain.CategoryWeeklyDigest:
		return []domain.Block{
			header("Итоги недели"),
			section("К началу недели у вас *{{task_count}}* открытых задач."),
		}
	case domain.CategoryGoalCheckin:
		return []domain.Block{
			section("{{coach_name}} спрашивает, как продвигается ваша цель:"),
			section("_{{goal}}_"),
			{
				Type: "actions",
				Elements: []domain.BlockElement{
					button("Всё по плану", domain.ActionGoalOnTrack, "on_track", "primary"),
					button("Нужна поддержка", domain.ActionGoalNeedHelp, "need_help", ""),
				},
			},
		}
	case domain.CategorySessionPrep:
		return []domain.Block{
			section("Завтра в {{session_time}} у вас сессия с {{coach_name}}."),
			section("Подготовиться можно здесь: {{session_link}}"),
			{
				Type: "actions",
				Elements: []domain.BlockElement{
					button("Буду", domain.ActionConfirmSession, "{{session_id}}", "primary"),
				},
			},
		}
	default:
		return nil
	}
}

// BuildTaskBlocks строит интерактивную часть дайджеста: по секции с кнопкой
// на каждую открытую задачу и замыкающий счётчик выполненного. Реконсилер
// пересобирает блоки этой же функцией после клика, поэтому редактирование
// сообщения и первичная отправка не могут разъехаться по форме.
func BuildTaskBlocks(tasks []domain.Task, open, done int) []domain.Block {
	blocks := make([]domain.Block, 0, len(tasks)+2)
	blocks = append(blocks, domain.Block{Type: "divider"})
	for _, task := range tasks {
		accessory := button("Готово", domain.ActionCompleteTask, strconv.FormatInt(task.ID, 10), "")
		blocks = append(blocks, domain.Block{
			Type:      "section",
			BlockID:   "task_" + strconv.FormatInt(task.ID, 10),
			Text:      &domain.TextObject{Type: "mrkdwn", Text: "• " + task.Title},
			Accessory: &accessory,
		})
	}
	blocks = append(blocks, domain.Block{
		Type: "context",
		Elements: []domain.BlockElement{{
			Type: "mrkdwn",
			Text: &domain.TextObject{Type: "mrkdwn", Text: fmt.Sprintf("Выполнено %d · Осталось %d", done, open)},
		}},
	})
	return blocks
}

func header(text string) domain.Block {
	return domain.Block{Type: "header", Text: &domain.TextObject{Type: "plain_text", Text: text}}
}

func section(text string) domain.Block {
	return domain.Block{Type: "section", Text: &domain.TextObject{Type: "mrkdwn", Text: text}}
}

func button(label, actionID, value, style string) domain.BlockElement {
	return domain.BlockElement{
		Type:     "button",
		Text:     &domain.TextObject{Type: "plain_text", Text: label},
		ActionID: actionID,
		Value:    value,
		Style:    style,
	}
}
