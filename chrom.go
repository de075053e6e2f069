/*
Copyright (C) 2019 Regents of the University of Minnesota.
This file is part of chrom.

chrom is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

chrom is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with chrom.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package chrom simulates liquid chromatography processes. A Process is
// a flow sheet of unit operations (inlets, General Rate Model columns,
// stirred tanks and outlets) driven by a schedule of events over one
// cycle. Columns are discretized in space with finite volumes and the
// resulting system is integrated in time with an L-stable Rosenbrock
// method.
package chrom

// Version is the version of this library.
const Version = "0.3.0"
