package llm

import (
	"context"
	"encoding/json"

	"contract-backend/internal/shared/telemetry"
)

// MockClient serves canned analyses for development without an API key and
// for tests. The payload mirrors a representative real review.
type MockClient struct{}

// AnalyzeContract returns a fixed bilingual-plausible analysis.
func (MockClient) AnalyzeContract(ctx context.Context, input AnalyzeInput) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	telemetry.Info("llm.mock_analysis", map[string]any{
		"text_len": len(input.ContractText),
	})

	mock := Analysis{
		Score:   72,
		Summary: "본 계약서는 용역 서비스 제공에 관한 표준적인 내용을 담고 있으나, 몇 가지 주의가 필요한 조항이 발견되었습니다.",
		Risks: []Risk{
			{
				ID:          "risk_1",
				Title:       "일방적 계약 해지 조항",
				Description: "갑은 을에게 사전 통보 없이 계약을 해지할 수 있는 반면, 을은 30일 전 서면 통보가 필요합니다.",
				Level:       "HIGH",
				Suggestion:  "양 당사자에게 동등한 해지 조건을 적용하도록 협상하세요.",
			},
			{
				ID:          "risk_2",
				Title:       "지급 지연 시 제재 조항 미비",
				Description: "대금 지급 지연 시 갑에 대한 지연 이자나 제재 조항이 없습니다.",
				Level:       "MEDIUM",
				Suggestion:  "지급 지연 시 연 15% 이상의 지연 이자 조항 추가를 요청하세요.",
			},
		},
		Questions: []string{
			"계약 기간 중 업무 범위 변경 시 추가 비용 산정 기준은 무엇인가요?",
			"지적재산권의 귀속 시점이 대금 완납 후인가요, 결과물 인도 시점인가요?",
		},
	}
	return json.Marshal(mock)
}

var _ Client = MockClient{}
