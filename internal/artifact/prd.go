package artifact

import (
	"fmt"
	"strings"

	"taskforge/internal/logging"
)

type prdSection int

const (
	prdNone prdSection = iota
	prdOverview
	prdBusinessGoals
	prdProductGoals
	prdSuccessMetrics
	prdFeatures
	prdTechStack
	prdPatterns
	prdConstraints
)

// ParsePRD parses a PRD markdown file into a structured view. Sections that
// do not match produce empty structures.
func (p *Parser) ParsePRD(path string) (*PRDData, error) {
	content, err := p.readValidated(path)
	if err != nil {
		return nil, err
	}
	data := parsePRDContent(content)
	data.FilePath = path
	logging.Get(logging.CategoryArtifact).Info("parsed PRD %s: %d features", path, len(data.Features))
	return data, nil
}

func parsePRDContent(content string) *PRDData {
	data := &PRDData{}
	section := prdNone
	var current *PRDFeature
	var overviewLines []string
	featureMode := "" // "stories" or "criteria" within a feature

	flushFeature := func() {
		if current != nil {
			data.Features = append(data.Features, *current)
			current = nil
		}
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "## ") {
			flushFeature()
			section = classifyPRDHeader(strings.ToLower(strings.TrimPrefix(trimmed, "## ")))
			featureMode = ""
			continue
		}

		// Subheaders inside the goals/features area refine the section.
		if strings.HasPrefix(trimmed, "### ") {
			title := strings.TrimSpace(strings.TrimPrefix(trimmed, "### "))
			lower := strings.ToLower(title)
			switch {
			case section == prdFeatures:
				flushFeature()
				current = &PRDFeature{
					ID:    fmt.Sprintf("F%d", len(data.Features)+1),
					Title: title,
				}
				featureMode = ""
			case strings.Contains(lower, "business goal"):
				section = prdBusinessGoals
			case strings.Contains(lower, "product goal"):
				section = prdProductGoals
			case strings.Contains(lower, "success metric"):
				section = prdSuccessMetrics
			}
			continue
		}

		bullet, isBullet := cutBullet(trimmed)

		switch section {
		case prdOverview:
			switch {
			case isBullet:
				// Goal bullets sometimes live directly under the overview.
			case trimmed != "":
				overviewLines = append(overviewLines, trimmed)
			}
		case prdBusinessGoals:
			if isBullet {
				data.Overview.BusinessGoals = append(data.Overview.BusinessGoals, bullet)
			}
		case prdProductGoals:
			if isBullet {
				data.Overview.ProductGoals = append(data.Overview.ProductGoals, bullet)
			}
		case prdSuccessMetrics:
			if isBullet {
				data.Overview.SuccessMetrics = append(data.Overview.SuccessMetrics, bullet)
			}
		case prdFeatures:
			if current == nil {
				continue
			}
			lower := strings.ToLower(trimmed)
			switch {
			case strings.Contains(lower, "user stories"):
				featureMode = "stories"
			case strings.Contains(lower, "acceptance criteria"):
				featureMode = "criteria"
			case strings.HasPrefix(lower, "priority:") || strings.HasPrefix(lower, "**priority:**"):
				current.Priority = strings.TrimSpace(trimmed[strings.Index(trimmed, ":")+1:])
				current.Priority = strings.Trim(current.Priority, "* ")
			case isBullet:
				switch featureMode {
				case "stories":
					current.UserStories = append(current.UserStories, bullet)
				case "criteria":
					current.AcceptanceCriteria = append(current.AcceptanceCriteria, bullet)
				default:
					current.AcceptanceCriteria = append(current.AcceptanceCriteria, bullet)
				}
			case trimmed != "":
				if current.Description == "" {
					current.Description = trimmed
				} else {
					current.Description += " " + trimmed
				}
			}
		case prdTechStack:
			if isBullet {
				data.Technical.TechStack = append(data.Technical.TechStack, bullet)
			}
		case prdPatterns:
			if isBullet {
				data.Technical.ArchitecturalPatterns = append(data.Technical.ArchitecturalPatterns, bullet)
			}
		case prdConstraints:
			if isBullet {
				data.Technical.Constraints = append(data.Technical.Constraints, bullet)
			}
		}
	}
	flushFeature()

	data.Overview.Description = strings.Join(overviewLines, " ")
	return data
}

func classifyPRDHeader(header string) prdSection {
	switch {
	case strings.Contains(header, "business goal"):
		return prdBusinessGoals
	case strings.Contains(header, "product goal") || strings.Contains(header, "goal"):
		return prdProductGoals
	case strings.Contains(header, "success metric") || strings.Contains(header, "metric"):
		return prdSuccessMetrics
	case strings.Contains(header, "overview") || strings.Contains(header, "summary") || strings.Contains(header, "introduction"):
		return prdOverview
	case strings.Contains(header, "feature") || strings.Contains(header, "requirement"):
		return prdFeatures
	case strings.Contains(header, "tech stack") || strings.Contains(header, "technolog") || strings.Contains(header, "technical"):
		return prdTechStack
	case strings.Contains(header, "pattern") || strings.Contains(header, "architect"):
		return prdPatterns
	case strings.Contains(header, "constraint"):
		return prdConstraints
	default:
		return prdNone
	}
}

// cutBullet returns the content of a markdown bullet line.
func cutBullet(line string) (string, bool) {
	if strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") {
		return strings.TrimSpace(line[2:]), true
	}
	return "", false
}
