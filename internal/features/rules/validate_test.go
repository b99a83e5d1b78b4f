package rules

import (
	"errors"
	"testing"

	"serotonyl.ru/discord-autorole/internal/common"
)

const (
	testGuild   = "100000000000000001"
	testRole    = "200000000000000001"
	testMessage = "300000000000000001"
)

func TestNormalizeEmojiKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"👍", "👍"},
		{" 🔥 ", "🔥"},
		{"👍🏽", "👍🏽"},
		{"1️⃣", "1️⃣"},
		{"<:pepe:123456789012345678>", "pepe:123456789012345678"},
		{"<a:dance:123456789012345678>", "dance:123456789012345678"},
		{"pepe:123456789012345678", "pepe:123456789012345678"},
	}
	for _, tt := range tests {
		got, err := NormalizeEmojiKey(tt.in)
		if err != nil {
			t.Errorf("NormalizeEmojiKey(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("NormalizeEmojiKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"", "abc", "5", "pepe:", ":123", "a b"} {
		if _, err := NormalizeEmojiKey(bad); !errors.Is(err, common.ErrInvalidEmoji) {
			t.Errorf("NormalizeEmojiKey(%q) error = %v, want ErrInvalidEmoji", bad, err)
		}
	}
}

func TestValidateName(t *testing.T) {
	for _, ok := range []string{"veteran", "top-poster", "a1_b2"} {
		if err := ValidateName(ok); err != nil {
			t.Errorf("ValidateName(%q) error = %v", ok, err)
		}
	}
	for _, bad := range []string{"", "Veteran", "-lead", "with space", "waaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaay-too-long"} {
		if err := ValidateName(bad); !errors.Is(err, common.ErrInvalidRuleName) {
			t.Errorf("ValidateName(%q) error = %v, want ErrInvalidRuleName", bad, err)
		}
	}
}

func TestRuleValidate(t *testing.T) {
	zero := int64(0)
	tests := []struct {
		name    string
		rule    Rule
		wantErr error
	}{
		{
			name: "any react",
			rule: Rule{GuildID: testGuild, Name: "any", RoleID: testRole, Trigger: MessageReactAny{}},
		},
		{
			name:    "bad role",
			rule:    Rule{GuildID: testGuild, Name: "any", RoleID: "role", Trigger: MessageReactAny{}},
			wantErr: common.ErrInvalidSnowflake,
		},
		{
			name:    "zero duration",
			rule:    Rule{GuildID: testGuild, Name: "any", RoleID: testRole, DurationMs: &zero, Trigger: MessageReactAny{}},
			wantErr: common.ErrInvalidDuration,
		},
		{
			name:    "nil trigger",
			rule:    Rule{GuildID: testGuild, Name: "any", RoleID: testRole},
			wantErr: common.ErrInvalidTrigger,
		},
		{
			name:    "specific without message",
			rule:    Rule{GuildID: testGuild, Name: "s", RoleID: testRole, Trigger: ReactSpecific{EmojiKey: "👍"}},
			wantErr: common.ErrInvalidSnowflake,
		},
		{
			name:    "threshold zero count",
			rule:    Rule{GuildID: testGuild, Name: "t", RoleID: testRole, Trigger: ReactedThreshold{EmojiKey: "👍"}},
			wantErr: common.ErrInvalidTrigger,
		},
		{
			name:    "reputation zero",
			rule:    Rule{GuildID: testGuild, Name: "r", RoleID: testRole, Trigger: ReputationThreshold{}},
			wantErr: common.ErrInvalidTrigger,
		},
		{
			name:    "antiquity zero",
			rule:    Rule{GuildID: testGuild, Name: "a", RoleID: testRole, Trigger: AntiquityThreshold{}},
			wantErr: common.ErrInvalidDuration,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
