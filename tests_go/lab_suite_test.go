// tests_go/lab_suite_test.go
package tests_go

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

// LabSuite runs a full lab lifecycle against the configured lab host.
type LabSuite struct {
	BaseSuite
}

func TestLabSuite(t *testing.T) {
	suite.Run(t, new(LabSuite))
}

func (s *LabSuite) TestLifecycle() {
	labName := fmt.Sprintf("%s-life-%s", s.cfg.LabNamePrefix, s.randomSuffix(5))
	s.logTest("Lab lifecycle for '%s'", labName)

	deployed := s.deployLab(labName)
	topoFile := deployed.FilePath
	if topoFile != "" {
		defer s.cleanupLab(topoFile)
	}
	s.Require().True(*deployed.Success, "Deploy failed: %s", deployed.Error)
	s.Require().True(strings.HasSuffix(topoFile, "/"+labName+".clab.yml"), "unexpected filePath %q", topoFile)
	s.logSuccess("Deployed %s", topoFile)

	time.Sleep(s.cfg.StabilizePause)
	lab := findLab(s.inspect(), topoFile)
	s.Require().NotNil(lab, "Deployed lab not found in inspect output")
	s.Assert().Equal(labName, lab.LabName)
	s.Assert().NotEmpty(lab.Nodes)

	s.checkFileBrowsing(topoFile, labName)

	reconfigured := s.topologyOperation("reconfigure", topoFile, false)
	s.Require().True(*reconfigured.Success, "Reconfigure failed: %s", reconfigured.Error)
	s.Assert().Equal(topoFile, reconfigured.FilePath)

	destroyed := s.topologyOperation("destroy", topoFile, true)
	s.Require().True(*destroyed.Success, "Destroy failed: %s", destroyed.Error)
	s.Assert().Nil(findLab(s.inspect(), topoFile), "Lab still listed after destroy")
	s.logSuccess("Lab '%s' completed its lifecycle", labName)
}

func (s *LabSuite) checkFileBrowsing(topoFile, labName string) {
	dir := topoFile[:strings.LastIndex(topoFile, "/")]
	listURL := fmt.Sprintf("%s/api/files/list?serverIp=%s&path=%s", s.cfg.APIURL, url.QueryEscape(s.cfg.LabHost), url.QueryEscape(dir))
	bodyBytes, statusCode, err := s.doRequest("GET", listURL, s.headers, nil, s.cfg.RequestTimeout)
	s.Require().NoError(err)
	s.Require().Equal(http.StatusOK, statusCode, "Body: %s", string(bodyBytes))

	var list struct {
		Contents []struct {
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"contents"`
	}
	s.Require().NoError(json.Unmarshal(bodyBytes, &list))
	found := false
	for _, e := range list.Contents {
		if e.Name == labName+".clab.yml" && e.Type == "file" {
			found = true
		}
	}
	s.Assert().True(found, "Uploaded topology not listed in %s", dir)

	readURL := fmt.Sprintf("%s/api/files/read?serverIp=%s&path=%s", s.cfg.APIURL, url.QueryEscape(s.cfg.LabHost), url.QueryEscape(topoFile))
	bodyBytes, statusCode, err = s.doRequest("GET", readURL, s.headers, nil, s.cfg.RequestTimeout)
	s.Require().NoError(err)
	s.Require().Equal(http.StatusOK, statusCode, "Body: %s", string(bodyBytes))
	s.Assert().Contains(string(bodyBytes), labName)
}

func (s *LabSuite) TestDestroyUnknownTopologyFails() {
	topoFile := fmt.Sprintf("%s-missing-%s.clab.yml", s.cfg.LabNamePrefix, s.randomSuffix(5))
	s.logTest("Destroying unknown topology '%s'", topoFile)

	result := s.topologyOperation("destroy", topoFile, false)
	s.Assert().False(*result.Success)
	s.Assert().NotEmpty(result.Error)
}

func (s *LabSuite) TestValidationErrorsAreNotStreamed() {
	s.logTest("Destroy without topoFile is rejected before streaming")

	payload := s.mustMarshal(map[string]string{"serverIp": s.cfg.LabHost})
	bodyBytes, statusCode, err := s.doRequest("POST", s.cfg.APIURL+"/api/containerlab/destroy", s.headers, strings.NewReader(string(payload)), s.cfg.RequestTimeout)
	s.Require().NoError(err)
	s.Assert().Equal(http.StatusBadRequest, statusCode, "Body: %s", string(bodyBytes))
	s.Assert().Contains(string(bodyBytes), "topoFile")
}
