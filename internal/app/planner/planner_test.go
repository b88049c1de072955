package planner

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/John-Robertt/aprcmp/internal/domain"
	"github.com/John-Robertt/aprcmp/internal/manifest"
)

func TestPlanRun_PlainConcatenation(t *testing.T) {
	cases := []struct {
		base, run string
		want      domain.RunPlan
	}{
		{"D:/Data/", "run01", domain.RunPlan{Run: "run01", CandidatePath: "D:/Data/run01.pcl", ReferencePath: "D:/Data/run01.acl"}},
		// 没有结尾分隔符时不自动补：拼接结果即路径。
		{"/data/batch_", "07", domain.RunPlan{Run: "07", CandidatePath: "/data/batch_07.pcl", ReferencePath: "/data/batch_07.acl"}},
		{"", "sub/run", domain.RunPlan{Run: "sub/run", CandidatePath: "sub/run.pcl", ReferencePath: "sub/run.acl"}},
	}
	for _, c := range cases {
		if diff := cmp.Diff(c.want, PlanRun(c.base, c.run)); diff != "" {
			t.Fatalf("PlanRun(%q,%q) 不符合预期 (-want +got):\n%s", c.base, c.run, diff)
		}
	}
}

func TestPlanManifest_KeepsOrderAndDuplicates(t *testing.T) {
	m := manifest.Manifest{BaseDir: "/d/", Runs: []string{"b", "a", "b"}}

	plans := PlanManifest(m)
	if len(plans) != 3 {
		t.Fatalf("期望 3 个计划，实际 %d", len(plans))
	}
	got := []string{plans[0].Run, plans[1].Run, plans[2].Run}
	if diff := cmp.Diff([]string{"b", "a", "b"}, got); diff != "" {
		t.Fatalf("顺序不符合预期 (-want +got):\n%s", diff)
	}
	if plans[2].ReferencePath != "/d/b.acl" {
		t.Fatalf("ReferencePath 不正确：%q", plans[2].ReferencePath)
	}
}
