package extract

import (
	"encoding/json"
	"fmt"
)

const systemPromptTemplate = `你是一个订单查询分析助手。你需要从用户的查询问题中提取订单相关任务，并将其分解为标准格式。

你需要遵循以下规则：
1. 意图库是categories in %s
2. 每个task必须包含订单号(order_id)和具体意图(purpose)
3. 判断是否为有效问题(valid_question)：查询内容必须与意图库中的操作相关
4. 判断是否为多任务(multi-task)：包含多个订单号或多个意图时为true
5. 统计任务数量(task_count)：提取出的合法task数量
6. 按照固定格式输出结果，必须是有效的JSON格式

输出格式示例：
单任务：
{
    "valid_question": "yes",
    "multi-task": "no",
    "task_count": 1,
    "tasks": {
        "order_id_1": "xxx",
        "purpose_1": "xxx"
    }
}

多任务：
{
    "valid_question": "yes",
    "multi-task": "yes",
    "task_count": 2,
    "task_1": {
        "order_id_1": "xxx",
        "purpose_1": "xxx"
    },
    "task_2": {
        "order_id_2": "xxx",
        "purpose_2": "xxx"
    }
}

无效问题：
{
    "valid_question": "no"
}`

const userPromptTemplate = `请分析以下查询问题，提取订单任务信息：

%s

请按照以下步骤进行分析，只输出最终的JSON结果：

1. 判断是否为有效的订单相关问题
2. 识别问题中的订单号和操作意图
3. 确认是否存在多任务情况
4. 统计任务数量
5. 按照规定格式输出结果`

func buildSystemPrompt(taxonomy Taxonomy) (string, error) {
	encoded, err := json.Marshal(taxonomy)
	if err != nil {
		return "", fmt.Errorf("encode taxonomy: %w", err)
	}
	return fmt.Sprintf(systemPromptTemplate, encoded), nil
}

func buildUserPrompt(query string) string {
	return fmt.Sprintf(userPromptTemplate, query)
}
